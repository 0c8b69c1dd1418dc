package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront-gateway/internal/audit"
	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/fjod/storefront-gateway/internal/cart"
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/fjod/storefront-gateway/internal/events"
	"github.com/fjod/storefront-gateway/internal/pricing"
	"github.com/fjod/storefront-gateway/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func newSessionStore(t *testing.T) *session.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewRedisStore(client, time.Hour)
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

type fakeCarts struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	err     error
	cleared []string
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: map[string]*domain.Cart{}}
}

func (f *fakeCarts) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.carts[cartID]; ok {
		return c, nil
	}
	return domain.NewCart(cartID), nil
}

func (f *fakeCarts) AddItem(_ context.Context, cartID string, item domain.CartLineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	c, ok := f.carts[cartID]
	if !ok {
		c = domain.NewCart(cartID)
		f.carts[cartID] = c
	}
	c.Items = append(c.Items, item)
	return nil
}

func (f *fakeCarts) UpdateQuantity(_ context.Context, cartID string, productID int64, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cartID]
	if !ok {
		return cart.ErrItemNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeCarts) RemoveItem(_ context.Context, cartID string, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cartID]
	if !ok {
		return cart.ErrItemNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeCarts) Clear(_ context.Context, cartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, cartID)
	f.cleared = append(f.cleared, cartID)
	return nil
}

// fakePricer quotes the captured prices.
type fakePricer struct {
	reconcileErr error
	applyErr     error
	appliedCode  string
	removed      bool
}

func (f *fakePricer) Provisional(_ context.Context, c *domain.Cart) pricing.Quote {
	sub := c.CachedSubtotal()
	return pricing.Quote{CartID: c.ID, ItemCount: c.ItemCount(), Subtotal: sub, Total: sub, Loading: true}
}

func (f *fakePricer) Reconcile(_ context.Context, c *domain.Cart, _ string) (pricing.Quote, error) {
	if f.reconcileErr != nil {
		return pricing.Quote{}, f.reconcileErr
	}
	sub := c.CachedSubtotal()
	return pricing.Quote{CartID: c.ID, Lines: []pricing.QuoteLine{}, ItemCount: c.ItemCount(), Subtotal: sub, Total: sub}, nil
}

func (f *fakePricer) ApplyCoupon(ctx context.Context, c *domain.Cart, token, code string) (pricing.Quote, error) {
	if f.applyErr != nil {
		return pricing.Quote{}, f.applyErr
	}
	f.appliedCode = code
	return f.Reconcile(ctx, c, token)
}

func (f *fakePricer) RemoveCoupon(ctx context.Context, c *domain.Cart, token string) (pricing.Quote, error) {
	f.removed = true
	return f.Reconcile(ctx, c, token)
}

type fakeProducts struct {
	products map[int64]*domain.Product
	err      error
}

func (f *fakeProducts) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, &backend.APIError{Status: http.StatusNotFound, Message: "Not found."}
	}
	return p, nil
}

type fakeQuotes struct {
	deleted []string
}

func (f *fakeQuotes) Delete(_ context.Context, cartID string) error {
	f.deleted = append(f.deleted, cartID)
	return nil
}

type fakeOrders struct {
	order     *domain.Order
	orders    []domain.Order
	err       error
	created   *domain.OrderRequest
	token     string
	cancelled bool
	reason    string
}

func (f *fakeOrders) CreateOrder(_ context.Context, token string, req domain.OrderRequest) (*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &req
	f.token = token
	return f.order, nil
}

func (f *fakeOrders) ListOrders(context.Context, string) ([]domain.Order, error) {
	return f.orders, f.err
}

func (f *fakeOrders) GetOrder(context.Context, string, int64) (*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) CancelOrder(_ context.Context, _ string, _ int64, reason string) (*domain.Order, error) {
	f.cancelled = true
	f.reason = reason
	out := *f.order
	out.OrderStatus = domain.OrderStatusCancelled
	out.CanCancel = false
	return &out, nil
}

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) Ensure(context.Context, string) (string, error) {
	return f.token, f.err
}

type fakeAuth struct {
	tokens    *domain.AuthTokens
	user      *domain.User
	err       error
	userErr   error
	loggedOut string
}

func (f *fakeAuth) Login(context.Context, domain.Credentials) (*domain.AuthTokens, error) {
	return f.tokens, f.err
}

func (f *fakeAuth) GoogleLogin(context.Context, domain.GoogleLogin) (*domain.AuthTokens, error) {
	return f.tokens, f.err
}

func (f *fakeAuth) Register(context.Context, domain.Registration) (*domain.AuthTokens, error) {
	return f.tokens, f.err
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return nil
}

func (f *fakeAuth) CurrentUser(context.Context, string) (*domain.User, error) {
	return f.user, f.userErr
}

type fakeAdmin struct {
	login     *domain.AdminLogin
	loginErr  error
	err       error
	resources map[backend.Resource]map[int64]json.RawMessage
	created   json.RawMessage
	deleted   []int64
	status    domain.OrderStatus
	active    *bool
	lastQuery url.Values
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{resources: map[backend.Resource]map[int64]json.RawMessage{}}
}

func (f *fakeAdmin) put(res backend.Resource, id int64, body string) {
	if f.resources[res] == nil {
		f.resources[res] = map[int64]json.RawMessage{}
	}
	f.resources[res][id] = json.RawMessage(body)
}

func (f *fakeAdmin) AdminLogin(context.Context, domain.Credentials) (*domain.AdminLogin, error) {
	return f.login, f.loginErr
}

func (f *fakeAdmin) Dashboard(context.Context, string) (domain.DashboardStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return domain.DashboardStats(`{"total_orders":3}`), nil
}

func (f *fakeAdmin) AdminList(_ context.Context, _ string, _ backend.Resource, query url.Values) (json.RawMessage, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`[]`), nil
}

func (f *fakeAdmin) AdminGet(_ context.Context, _ string, res backend.Resource, id int64) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.resources[res][id]
	if !ok {
		return nil, &backend.APIError{Status: http.StatusNotFound, Message: "Not found."}
	}
	return body, nil
}

func (f *fakeAdmin) AdminCreate(_ context.Context, _ string, _ backend.Resource, body json.RawMessage) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.created != nil {
		return f.created, nil
	}
	return body, nil
}

func (f *fakeAdmin) AdminUpdate(_ context.Context, _ string, res backend.Resource, id int64, body json.RawMessage) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.put(res, id, string(body))
	return body, nil
}

func (f *fakeAdmin) AdminDelete(_ context.Context, _ string, res backend.Resource, id int64) error {
	if f.err != nil {
		return f.err
	}
	delete(f.resources[res], id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAdmin) SetOrderStatus(_ context.Context, _ string, id int64, status domain.OrderStatus) (*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.status = status
	return &domain.Order{ID: id, OrderStatus: status}, nil
}

func (f *fakeAdmin) SetUserActive(_ context.Context, _ string, id int64, active bool) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.active = &active
	return &domain.User{ID: id, IsActive: active}, nil
}

type fakeEvictor struct {
	evicted []int64
}

func (f *fakeEvictor) Evict(_ context.Context, ids ...int64) error {
	f.evicted = append(f.evicted, ids...)
	return nil
}

type fakePublisher struct {
	changes []events.CatalogChange
}

func (f *fakePublisher) Publish(_ context.Context, change events.CatalogChange) error {
	f.changes = append(f.changes, change)
	return nil
}

type recordedEntry struct {
	actor, action, targetType, targetID string
	payload                             json.RawMessage
}

type fakeTrail struct {
	entries []recordedEntry
	filter  audit.ListFilter
}

func (f *fakeTrail) Record(_ context.Context, actor, action, targetType, targetID string, payload json.RawMessage) {
	f.entries = append(f.entries, recordedEntry{actor, action, targetType, targetID, payload})
}

func (f *fakeTrail) List(_ context.Context, filter audit.ListFilter) ([]audit.Entry, error) {
	f.filter = filter
	return []audit.Entry{}, nil
}
