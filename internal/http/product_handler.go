package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/fjod/storefront-gateway/internal/domain"
)

type CatalogBackend interface {
	ListProducts(ctx context.Context, query url.Values) (*backend.Page[domain.Product], error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListReviews(ctx context.Context, productID int64) ([]domain.Review, error)
	CreateReview(ctx context.Context, token string, productID int64, in domain.ReviewInput) (*domain.Review, error)
}

// ProductReader is the cached product lookup.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type ProductHandler struct {
	backend  CatalogBackend
	products ProductReader
	timeout  time.Duration
}

func NewProductHandler(backend CatalogBackend, products ProductReader, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		backend:  backend,
		products: products,
		timeout:  timeout,
	}
}

// ListProducts forwards search, filter and page parameters as they are.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := h.backend.ListProducts(ctx, r.URL.Query())
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	p, err := h.products.GetProduct(ctx, id)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.backend.ListCategories(ctx)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *ProductHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	reviews, err := h.backend.ListReviews(ctx, id)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	respondJSON(w, http.StatusOK, reviews)
}

func (h *ProductHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req domain.ReviewInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)
	if req.Rating < domain.MinRating || req.Rating > domain.MaxRating {
		respondError(w, http.StatusBadRequest, "invalid_rating", "rating must be between 1 and 5")
		return
	}
	if utf8.RuneCountInString(req.Comment) > domain.MaxReviewCommentLength {
		respondError(w, http.StatusBadRequest, "invalid_comment", "comment must be at most 2000 characters")
		return
	}

	review, err := h.backend.CreateReview(ctx, customerTokenFrom(r.Context()), id, req)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}
