package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/storefront-gateway/internal/domain"
)

const (
	adminLoginPath     = "/admin/api/login/"
	adminDashboardPath = "/admin/api/dashboard/"
)

// Resource names a collection of the staff API.
type Resource string

const (
	ResourceProducts   Resource = "products"
	ResourceCategories Resource = "categories"
	ResourceCoupons    Resource = "coupons"
	ResourceFlashSales Resource = "flash-sales"
	ResourceOrders     Resource = "orders"
	ResourceUsers      Resource = "users"
)

func (r Resource) path() string {
	return "/admin/api/" + string(r) + "/"
}

func (c *Client) AdminLogin(ctx context.Context, creds domain.Credentials) (*domain.AdminLogin, error) {
	var l domain.AdminLogin
	if err := c.call(ctx, http.MethodPost, adminLoginPath, "", creds, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) Dashboard(ctx context.Context, token string) (domain.DashboardStats, error) {
	return c.raw(ctx, http.MethodGet, adminDashboardPath, token, nil, nil)
}

func (c *Client) AdminList(ctx context.Context, token string, res Resource, query url.Values) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, res.path(), token, query, nil)
}

func (c *Client) AdminGet(ctx context.Context, token string, res Resource, id int64) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodGet, resourcePath(res.path(), id), token, nil, nil)
}

func (c *Client) AdminCreate(ctx context.Context, token string, res Resource, body json.RawMessage) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPost, res.path(), token, nil, body)
}

func (c *Client) AdminUpdate(ctx context.Context, token string, res Resource, id int64, body json.RawMessage) (json.RawMessage, error) {
	return c.raw(ctx, http.MethodPatch, resourcePath(res.path(), id), token, nil, body)
}

func (c *Client) AdminDelete(ctx context.Context, token string, res Resource, id int64) error {
	_, err := c.send(ctx, http.MethodDelete, resourcePath(res.path(), id), token, nil, nil)
	return err
}

type orderStatusRequest struct {
	OrderStatus domain.OrderStatus `json:"order_status"`
}

func (c *Client) SetOrderStatus(ctx context.Context, token string, id int64, status domain.OrderStatus) (*domain.Order, error) {
	var o domain.Order
	path := resourcePath(ResourceOrders.path(), id)
	if err := c.call(ctx, http.MethodPatch, path, token, orderStatusRequest{OrderStatus: status}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

type userActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (c *Client) SetUserActive(ctx context.Context, token string, id int64, active bool) (*domain.User, error) {
	var u domain.User
	path := resourcePath(ResourceUsers.path(), id)
	if err := c.call(ctx, http.MethodPatch, path, token, userActiveRequest{IsActive: active}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) raw(ctx context.Context, method, path, token string, query url.Values, body json.RawMessage) (json.RawMessage, error) {
	var payload any
	if body != nil {
		payload = body
	}
	data, err := c.send(ctx, method, path, token, query, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s %s returned invalid JSON", ErrUnavailable, method, path)
	}
	return json.RawMessage(data), nil
}
