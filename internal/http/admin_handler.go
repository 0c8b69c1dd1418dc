package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront-gateway/internal/audit"
	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/fjod/storefront-gateway/internal/events"
	"github.com/fjod/storefront-gateway/internal/session"
	"github.com/rs/zerolog"
)

type AdminBackend interface {
	AdminLogin(ctx context.Context, creds domain.Credentials) (*domain.AdminLogin, error)
	Dashboard(ctx context.Context, token string) (domain.DashboardStats, error)
	AdminList(ctx context.Context, token string, res backend.Resource, query url.Values) (json.RawMessage, error)
	AdminGet(ctx context.Context, token string, res backend.Resource, id int64) (json.RawMessage, error)
	AdminCreate(ctx context.Context, token string, res backend.Resource, body json.RawMessage) (json.RawMessage, error)
	AdminUpdate(ctx context.Context, token string, res backend.Resource, id int64, body json.RawMessage) (json.RawMessage, error)
	AdminDelete(ctx context.Context, token string, res backend.Resource, id int64) error
	SetOrderStatus(ctx context.Context, token string, id int64, status domain.OrderStatus) (*domain.Order, error)
	SetUserActive(ctx context.Context, token string, id int64, active bool) (*domain.User, error)
}

type PriceEvictor interface {
	Evict(ctx context.Context, ids ...int64) error
}

type ChangePublisher interface {
	Publish(ctx context.Context, change events.CatalogChange) error
}

type AuditTrail interface {
	Record(ctx context.Context, actor, action, targetType, targetID string, payload json.RawMessage)
	List(ctx context.Context, f audit.ListFilter) ([]audit.Entry, error)
}

type AdminHandler struct {
	admin     AdminBackend
	sessions  session.Store
	prices    PriceEvictor
	publisher ChangePublisher
	audit     AuditTrail
	opts      SessionOptions
	timeout   time.Duration
}

func NewAdminHandler(admin AdminBackend, sessions session.Store, prices PriceEvictor, publisher ChangePublisher, trail AuditTrail, opts SessionOptions, timeout time.Duration) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		sessions:  sessions,
		prices:    prices,
		publisher: publisher,
		audit:     trail,
		opts:      opts,
		timeout:   timeout,
	}
}

type OrderStatusRequestDTO struct {
	OrderStatus domain.OrderStatus `json:"order_status"`
}

// Login forwards staff credentials. An unreachable backend is reported as
// such; there is no offline fallback.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var creds domain.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if (creds.Username == "" && creds.Email == "") || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_credentials", "username or email and password are required")
		return
	}

	login, err := h.admin.AdminLogin(ctx, creds)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if login.Token == "" {
		handleBackendError(w, r, errors.Join(backend.ErrUnavailable, errors.New("staff login answer carried no token")))
		return
	}

	sid, err := rotateSession(ctx, h.sessions, sessionIDFrom(r.Context()))
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if err := h.sessions.SetAdmin(ctx, sid, login.Token, login.User); err != nil {
		handleBackendError(w, r, err)
		return
	}
	setSessionCookie(w, sid, h.opts.TTL, h.opts.SecureCookie)
	respondJSON(w, http.StatusOK, UserResponseDTO{User: login.User})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if sid := sessionIDFrom(r.Context()); sid != "" {
		if err := h.sessions.ClearAdmin(ctx, sid); err != nil {
			handleBackendError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	st, _ := staffFrom(r.Context())

	stats, err := h.admin.Dashboard(ctx, st.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondRaw(w, http.StatusOK, stats)
}

func (h *AdminHandler) List(res backend.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		st, _ := staffFrom(r.Context())

		query := r.URL.Query()
		if res == backend.ResourceOrders {
			if s := query.Get("status"); s != "" && !domain.OrderStatus(s).IsValid() {
				respondError(w, http.StatusBadRequest, "invalid_status", "unknown order status "+strconv.Quote(s))
				return
			}
		}

		body, err := h.admin.AdminList(ctx, st.Token, res, query)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		respondRaw(w, http.StatusOK, body)
	}
}

func (h *AdminHandler) Get(res backend.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		st, _ := staffFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
			return
		}

		body, err := h.admin.AdminGet(ctx, st.Token, res, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		respondRaw(w, http.StatusOK, body)
	}
}

func (h *AdminHandler) Create(res backend.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		st, _ := staffFrom(r.Context())

		body, ok := readJSONBody(w, r)
		if !ok {
			return
		}

		created, err := h.admin.AdminCreate(ctx, st.Token, res, body)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		var affected []int64
		if res == backend.ResourceFlashSales {
			affected = union(saleProductIDs(body), saleProductIDs(created))
		}
		h.afterMutation(ctx, st, res, "create", idOf(created), affected, body)
		respondRaw(w, http.StatusCreated, created)
	}
}

func (h *AdminHandler) Update(res backend.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		st, _ := staffFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
			return
		}
		body, ok := readJSONBody(w, r)
		if !ok {
			return
		}

		before := h.saleProductsBefore(ctx, r, st, res, id)
		updated, err := h.admin.AdminUpdate(ctx, st.Token, res, id, body)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		var affected []int64
		switch res {
		case backend.ResourceProducts:
			affected = []int64{id}
		case backend.ResourceFlashSales:
			affected = union(before, saleProductIDs(body), saleProductIDs(updated))
		}
		h.afterMutation(ctx, st, res, "update", strconv.FormatInt(id, 10), affected, body)
		respondRaw(w, http.StatusOK, updated)
	}
}

func (h *AdminHandler) Delete(res backend.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		st, _ := staffFrom(r.Context())

		id, ok := pathID(r, "id")
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
			return
		}

		before := h.saleProductsBefore(ctx, r, st, res, id)
		if err := h.admin.AdminDelete(ctx, st.Token, res, id); err != nil {
			h.fail(w, r, err)
			return
		}

		var affected []int64
		switch res {
		case backend.ResourceProducts:
			affected = []int64{id}
		case backend.ResourceFlashSales:
			affected = before
		}
		h.afterMutation(ctx, st, res, "delete", strconv.FormatInt(id, 10), affected, nil)
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetOrderStatus accepts any known status; whether the transition is
// allowed is up to the backend.
func (h *AdminHandler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	st, _ := staffFrom(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return
	}
	var req OrderStatusRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !req.OrderStatus.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid_status", "unknown order status "+strconv.Quote(string(req.OrderStatus)))
		return
	}

	order, err := h.admin.SetOrderStatus(ctx, st.Token, id, req.OrderStatus)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payload, _ := json.Marshal(req)
	h.afterMutation(ctx, st, backend.ResourceOrders, "update_status", strconv.FormatInt(id, 10), nil, payload)
	respondJSON(w, http.StatusOK, order)
}

func (h *AdminHandler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	h.setUserActive(w, r, true)
}

func (h *AdminHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	h.setUserActive(w, r, false)
}

func (h *AdminHandler) setUserActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	st, _ := staffFrom(r.Context())

	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return
	}

	user, err := h.admin.SetUserActive(ctx, st.Token, id, active)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	action := "deactivate"
	if active {
		action = "activate"
	}
	h.afterMutation(ctx, st, backend.ResourceUsers, action, strconv.FormatInt(id, 10), nil, nil)
	respondJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	f := audit.ListFilter{TargetType: q.Get("target_type"), Actor: q.Get("actor")}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		f.Limit = limit
	}

	entries, err := h.audit.List(ctx, f)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// fail drops the staff token when the backend no longer accepts it.
func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !backend.IsUnauthorized(err) {
		handleBackendError(w, r, err)
		return
	}
	if sid := sessionIDFrom(r.Context()); sid != "" {
		if clearErr := h.sessions.ClearAdmin(context.WithoutCancel(r.Context()), sid); clearErr != nil {
			zerolog.Ctx(r.Context()).Warn().Err(clearErr).Msg("clear rejected staff token failed")
		}
	}
	respondJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:    "staff session expired, please log in again",
		Code:     "session_expired",
		Redirect: "/admin/login",
	})
}

// afterMutation evicts cached prices of the affected products, tells other
// instances about it and records the change.
func (h *AdminHandler) afterMutation(ctx context.Context, st staff, res backend.Resource, action, targetID string, affected []int64, payload json.RawMessage) {
	log := zerolog.Ctx(ctx)
	if len(affected) > 0 {
		if err := h.prices.Evict(ctx, affected...); err != nil {
			log.Warn().Err(err).Ints64("product_ids", affected).Msg("evict cached prices failed")
		}

		change := events.CatalogChange{Type: events.ProductChanged, ProductIDs: affected, OccurredAt: time.Now().UTC()}
		if res == backend.ResourceFlashSales {
			change.Type = events.FlashSaleChanged
			change.FlashSaleID, _ = strconv.ParseInt(targetID, 10, 64)
		}
		if err := h.publisher.Publish(ctx, change); err != nil {
			log.Warn().Err(err).Str("type", string(change.Type)).Msg("publish catalog change failed")
		}
	}
	h.audit.Record(ctx, st.Actor, action, string(res), targetID, payload)
}

func (h *AdminHandler) saleProductsBefore(ctx context.Context, r *http.Request, st staff, res backend.Resource, id int64) []int64 {
	if res != backend.ResourceFlashSales {
		return nil
	}
	raw, err := h.admin.AdminGet(ctx, st.Token, res, id)
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Int64("flash_sale_id", id).Msg("read flash sale before change failed")
		return nil
	}
	return saleProductIDs(raw)
}

func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body is too large")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read request body")
		return nil, false
	}
	if len(strings.TrimSpace(string(body))) == 0 || !json.Valid(body) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}
	return body, true
}

func idOf(raw json.RawMessage) string {
	var v struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v.ID.String()
}

// saleProductIDs reads product ids from a flash sale as the backend returns
// it or as staff submit it.
func saleProductIDs(raw json.RawMessage) []int64 {
	if len(raw) == 0 {
		return nil
	}
	var v struct {
		Products   []domain.FlashSaleProduct `json:"products"`
		ProductIDs []int64                   `json:"product_ids"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	ids := append([]int64(nil), v.ProductIDs...)
	for _, p := range v.Products {
		ids = append(ids, p.ID)
	}
	return ids
}

func union(lists ...[]int64) []int64 {
	seen := map[int64]struct{}{}
	var out []int64
	for _, l := range lists {
		for _, id := range l {
			if _, ok := seen[id]; ok || id <= 0 {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
