package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront-gateway/internal/cart"
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/fjod/storefront-gateway/internal/pricing"
	"github.com/rs/zerolog"
)

type CartStore interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID string, item domain.CartLineItem) error
	UpdateQuantity(ctx context.Context, cartID string, productID int64, quantity int) error
	RemoveItem(ctx context.Context, cartID string, productID int64) error
	Clear(ctx context.Context, cartID string) error
}

type Pricer interface {
	Provisional(ctx context.Context, c *domain.Cart) pricing.Quote
	Reconcile(ctx context.Context, c *domain.Cart, token string) (pricing.Quote, error)
	ApplyCoupon(ctx context.Context, c *domain.Cart, token, code string) (pricing.Quote, error)
	RemoveCoupon(ctx context.Context, c *domain.Cart, token string) (pricing.Quote, error)
}

type CartHandler struct {
	carts    CartStore
	products ProductReader
	pricer   Pricer
	timeout  time.Duration
}

func NewCartHandler(carts CartStore, products ProductReader, pricer Pricer, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		pricer:   pricer,
		timeout:  timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

// GetCart answers with the reconciled quote of the cart.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.respondQuote(ctx, w, r, http.StatusOK)
}

// GetQuote answers with the provisional quote when ?provisional=true, which
// needs no product fetches.
func (h *CartHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if r.URL.Query().Get("provisional") != "true" {
		h.respondQuote(ctx, w, r, http.StatusOK)
		return
	}

	c, err := h.carts.GetCart(ctx, cartIDFrom(r.Context()))
	if err != nil {
		handleCartError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.pricer.Provisional(ctx, c))
}

// StreamQuote sends the provisional quote at once and the reconciled quote
// when every product fetch has finished.
func (h *CartHandler) StreamQuote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	log := zerolog.Ctx(r.Context())

	c, err := h.carts.GetCart(ctx, cartIDFrom(r.Context()))
	if err != nil {
		handleCartError(w, r, err)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		log.Error().Err(err).Msg("open quote stream failed")
		return
	}
	if err := stream.send("quote", h.pricer.Provisional(ctx, c)); err != nil {
		return
	}

	q, err := h.pricer.Reconcile(ctx, c, customerTokenFrom(r.Context()))
	if err != nil {
		if r.Context().Err() == nil {
			_ = stream.send("error", ErrorResponse{Error: "pricing did not finish in time", Code: "timeout"})
		}
		return
	}
	if err := stream.send("quote", q); err != nil {
		log.Debug().Err(err).Msg("quote stream closed by client")
	}
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if !domain.ValidQuantity(req.Quantity) {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	p, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if !p.IsInStock {
		respondError(w, http.StatusConflict, "out_of_stock", "product is out of stock")
		return
	}

	// a product priced only on sale keeps the sale price as its list price
	price, ok := p.EffectivePrice()
	if !ok {
		respondError(w, http.StatusConflict, "price_unavailable", "product has no price")
		return
	}
	if p.Price != nil {
		price = *p.Price
	}

	item := domain.CartLineItem{
		ProductID:  p.ID,
		Name:       p.Name,
		Price:      price,
		SalePrice:  p.SalePrice,
		Quantity:   req.Quantity,
		FirstImage: p.FirstImage(),
		AddedAt:    time.Now().UTC(),
	}
	if err := h.carts.AddItem(ctx, cartIDFrom(r.Context()), item); err != nil {
		handleCartError(w, r, err)
		return
	}
	h.respondQuote(ctx, w, r, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !domain.ValidQuantity(req.Quantity) {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	if err := h.carts.UpdateQuantity(ctx, cartIDFrom(r.Context()), productID, req.Quantity); err != nil {
		handleCartError(w, r, err)
		return
	}
	h.respondQuote(ctx, w, r, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(r, "product_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	if err := h.carts.RemoveItem(ctx, cartIDFrom(r.Context()), productID); err != nil {
		handleCartError(w, r, err)
		return
	}
	h.respondQuote(ctx, w, r, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.Clear(ctx, cartIDFrom(r.Context())); err != nil {
		handleCartError(w, r, err)
		return
	}
	h.respondQuote(ctx, w, r, http.StatusOK)
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ApplyCouponRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		respondError(w, http.StatusBadRequest, "invalid_coupon", "code is required")
		return
	}

	c, err := h.carts.GetCart(ctx, cartIDFrom(r.Context()))
	if err != nil {
		handleCartError(w, r, err)
		return
	}

	q, err := h.pricer.ApplyCoupon(ctx, c, customerTokenFrom(r.Context()), code)
	var rejected *pricing.CouponRejectedError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, q)
	case errors.As(err, &rejected):
		msg := rejected.Message
		if msg == "" {
			msg = "coupon is not valid for this order"
		}
		respondError(w, http.StatusBadRequest, "coupon_invalid", msg)
	case errors.Is(err, pricing.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	default:
		handleBackendError(w, r, err)
	}
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.carts.GetCart(ctx, cartIDFrom(r.Context()))
	if err != nil {
		handleCartError(w, r, err)
		return
	}
	q, err := h.pricer.RemoveCoupon(ctx, c, customerTokenFrom(r.Context()))
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (h *CartHandler) respondQuote(ctx context.Context, w http.ResponseWriter, r *http.Request, status int) {
	c, err := h.carts.GetCart(ctx, cartIDFrom(r.Context()))
	if err != nil {
		handleCartError(w, r, err)
		return
	}
	q, err := h.pricer.Reconcile(ctx, c, customerTokenFrom(r.Context()))
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, status, q)
}

func handleCartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "product is not in the cart")
	default:
		handleBackendError(w, r, err)
	}
}
