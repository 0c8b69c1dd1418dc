package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/fjod/storefront-gateway/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleBackendError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"deadline", fmt.Errorf("get product: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{"unavailable", fmt.Errorf("list: %w", backend.ErrUnavailable), http.StatusBadGateway, "backend_unavailable"},
		{"validation", &backend.APIError{Status: 400, Message: "bad", Fields: map[string][]string{"rating": {"too high"}}}, http.StatusBadRequest, "validation_failed"},
		{"unauthorized", &backend.APIError{Status: 401}, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", &backend.APIError{Status: 403}, http.StatusForbidden, "permission_denied"},
		{"not found", &backend.APIError{Status: 404}, http.StatusNotFound, "not_found"},
		{"conflict", &backend.APIError{Status: 409}, http.StatusConflict, "conflict"},
		{"other rejection", &backend.APIError{Status: 418}, http.StatusInternalServerError, "internal_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			handleBackendError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandleBackendError_FieldErrorsInDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	handleBackendError(rec, httptest.NewRequest(http.MethodPost, "/", nil),
		&backend.APIError{Status: 400, Message: "invalid", Fields: map[string][]string{"customer_phone": {"Invalid."}}})

	var resp struct {
		Details map[string][]string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"Invalid."}, resp.Details["customer_phone"])
}

func TestCartSession_IssuesCookieWhenMissing(t *testing.T) {
	var seen string
	h := CartSession(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = cartIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cartCookie, cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, seen, rec.Header().Get(cartHeader))
}

func TestCartSession_KeepsValidID(t *testing.T) {
	id := uuid.NewString()
	var seen string
	h := CartSession(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = cartIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cartCookie, Value: id})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, id, seen)
	assert.Empty(t, rec.Result().Cookies())
}

func TestCartSession_HeaderWinsOverCookie(t *testing.T) {
	header := uuid.NewString()
	var seen string
	h := CartSession(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = cartIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(cartHeader, header)
	req.AddCookie(&http.Cookie{Name: cartCookie, Value: uuid.NewString()})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, header, seen)
}

func TestCartSession_ReplacesGarbage(t *testing.T) {
	var seen string
	h := CartSession(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = cartIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cartCookie, Value: "../../etc"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, "../../etc", seen)
	assert.Len(t, rec.Result().Cookies(), 1)
}

func TestRequireCustomer(t *testing.T) {
	tests := []struct {
		name       string
		tokens     fakeTokens
		wantStatus int
		wantCode   string
	}{
		{"valid token", fakeTokens{token: "access"}, http.StatusOK, ""},
		{"guest", fakeTokens{err: session.ErrNotAuthenticated}, http.StatusUnauthorized, "unauthenticated"},
		{"refresh failed", fakeTokens{err: session.ErrSessionExpired}, http.StatusUnauthorized, "session_expired"},
		{"store down", fakeTokens{err: errors.New("redis down")}, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var token string
			h := RequireCustomer(tt.tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				token = customerTokenFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, tt.wantCode, resp.Code)
				if tt.wantCode == "session_expired" {
					assert.Equal(t, "/login", resp.Redirect)
				}
				return
			}
			assert.Equal(t, "access", token)
		})
	}
}

func TestOptionalCustomer_LetsGuestsThrough(t *testing.T) {
	called := false
	h := OptionalCustomer(fakeTokens{err: session.ErrNotAuthenticated})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Empty(t, customerTokenFrom(r.Context()))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestOptionalCustomer_StillReportsExpiry(t *testing.T) {
	h := OptionalCustomer(fakeTokens{err: session.ErrSessionExpired})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	store := newSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetAdmin(ctx, "staff-sid", "admin-token", &domain.User{Username: "alice", IsStaff: true}))
	require.NoError(t, store.SetCustomer(ctx, "customer-sid", "access", "refresh"))

	var got staff
	h := Session(RequireAdmin(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = staffFrom(r.Context())
	})))

	for _, sid := range []string{"", "customer-sid", "unknown"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if sid != "" {
			req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sid})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "sid %q", sid)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "staff-sid"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, staff{Token: "admin-token", Actor: "alice"}, got)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"message":"inside"`)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/pot", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, len("short and stout"), entry["bytes"])
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	rec := &StatusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, err := rec.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Status())
}

func TestLimitBody(t *testing.T) {
	h := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := readJSONBody(w, r)
		if ok {
			w.WriteHeader(http.StatusOK)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"far too long"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
