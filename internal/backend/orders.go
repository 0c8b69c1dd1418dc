package backend

import (
	"context"
	"net/http"

	"github.com/fjod/storefront-gateway/internal/domain"
)

const ordersPath = "/api/orders/"

func (c *Client) CreateOrder(ctx context.Context, token string, req domain.OrderRequest) (*domain.Order, error) {
	var o domain.Order
	if err := c.call(ctx, http.MethodPost, ordersPath, token, req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) ListOrders(ctx context.Context, token string) ([]domain.Order, error) {
	page, err := list[domain.Order](ctx, c, ordersPath, token, nil)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) GetOrder(ctx context.Context, token string, id int64) (*domain.Order, error) {
	var o domain.Order
	if err := c.call(ctx, http.MethodGet, resourcePath(ordersPath, id), token, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

type cancelOrderRequest struct {
	OrderStatus        domain.OrderStatus `json:"order_status"`
	CancellationReason string             `json:"cancellation_reason"`
}

func (c *Client) CancelOrder(ctx context.Context, token string, id int64, reason string) (*domain.Order, error) {
	body := cancelOrderRequest{
		OrderStatus:        domain.OrderStatusCancelled,
		CancellationReason: reason,
	}
	var o domain.Order
	if err := c.call(ctx, http.MethodPatch, resourcePath(ordersPath, id), token, body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
