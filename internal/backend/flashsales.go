package backend

import (
	"context"
	"net/http"

	"github.com/fjod/storefront-gateway/internal/domain"
)

const (
	flashSalesPath       = "/api/flash-sales/"
	activeFlashSalesPath = "/api/flash-sales/active/"
)

func (c *Client) ListFlashSales(ctx context.Context, activeOnly bool) ([]domain.FlashSale, error) {
	path := flashSalesPath
	if activeOnly {
		path = activeFlashSalesPath
	}
	page, err := list[domain.FlashSale](ctx, c, path, "", nil)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) GetFlashSale(ctx context.Context, id int64) (*domain.FlashSale, error) {
	var f domain.FlashSale
	if err := c.call(ctx, http.MethodGet, resourcePath(flashSalesPath, id), "", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
