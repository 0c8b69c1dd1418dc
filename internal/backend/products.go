package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/storefront-gateway/internal/domain"
)

const (
	productsPath   = "/api/products/"
	categoriesPath = "/api/categories/"
)

func (c *Client) ListProducts(ctx context.Context, query url.Values) (*Page[domain.Product], error) {
	return list[domain.Product](ctx, c, productsPath, "", query)
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if err := c.call(ctx, http.MethodGet, resourcePath(productsPath, id), "", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	page, err := list[domain.Category](ctx, c, categoriesPath, "", nil)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

func reviewsPath(productID int64) string {
	return fmt.Sprintf("%s%d/reviews/", productsPath, productID)
}

func (c *Client) ListReviews(ctx context.Context, productID int64) ([]domain.Review, error) {
	page, err := list[domain.Review](ctx, c, reviewsPath(productID), "", nil)
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) CreateReview(ctx context.Context, token string, productID int64, in domain.ReviewInput) (*domain.Review, error) {
	var r domain.Review
	if err := c.call(ctx, http.MethodPost, reviewsPath(productID), token, in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
