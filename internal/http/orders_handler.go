package http

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/rs/zerolog"
)

type OrderBackend interface {
	CreateOrder(ctx context.Context, token string, req domain.OrderRequest) (*domain.Order, error)
	ListOrders(ctx context.Context, token string) ([]domain.Order, error)
	GetOrder(ctx context.Context, token string, id int64) (*domain.Order, error)
	CancelOrder(ctx context.Context, token string, id int64, reason string) (*domain.Order, error)
}

// QuoteForgetter drops the remembered subtotal of a cart.
type QuoteForgetter interface {
	Delete(ctx context.Context, cartID string) error
}

type OrdersHandler struct {
	orders  OrderBackend
	carts   CartStore
	quotes  QuoteForgetter
	timeout time.Duration
}

func NewOrdersHandler(orders OrderBackend, carts CartStore, quotes QuoteForgetter, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		carts:   carts,
		quotes:  quotes,
		timeout: timeout,
	}
}

type CheckoutRequestDTO struct {
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerAddress string `json:"customer_address"`
	PaymentMethod   string `json:"payment_method"`
}

type CancelOrderRequestDTO struct {
	Reason string `json:"reason"`
}

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

func (req *CheckoutRequestDTO) validate() map[string][]string {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerAddress = strings.TrimSpace(req.CustomerAddress)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)

	errs := map[string][]string{}
	if req.CustomerName == "" {
		errs["customer_name"] = append(errs["customer_name"], "This field is required.")
	}
	if req.CustomerAddress == "" {
		errs["customer_address"] = append(errs["customer_address"], "This field is required.")
	}
	if req.CustomerPhone == "" {
		errs["customer_phone"] = append(errs["customer_phone"], "This field is required.")
	} else if !validPhone(req.CustomerPhone) {
		errs["customer_phone"] = append(errs["customer_phone"], "Enter a phone number of 7 to 15 digits.")
	}
	return errs
}

// validPhone allows a leading + and spaces, dashes, dots or parentheses
// between 7 to 15 digits.
func validPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			return false
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

// Checkout places an order from the cart. The server computes the totals;
// on success the cart is destroyed.
func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	log := zerolog.Ctx(r.Context())

	var req CheckoutRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respondErrorDetails(w, http.StatusBadRequest, "validation_failed", "please correct the highlighted fields", errs)
		return
	}

	cartID := cartIDFrom(r.Context())
	c, err := h.carts.GetCart(ctx, cartID)
	if err != nil {
		handleCartError(w, r, err)
		return
	}
	if c.IsEmpty() {
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
		return
	}

	orderReq := domain.NewOrderRequest(c, req.CustomerName, req.CustomerPhone, req.CustomerAddress, req.PaymentMethod)
	order, err := h.orders.CreateOrder(ctx, customerTokenFrom(r.Context()), orderReq)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}

	// the order exists now; a failed cleanup must not turn it into an error
	cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cleanupCancel()
	if err := h.carts.Clear(cleanupCtx, cartID); err != nil {
		log.Error().Err(err).Str("cart_id", cartID).Int64("order_id", order.ID).Msg("clear cart after checkout failed")
	}
	if err := h.quotes.Delete(cleanupCtx, cartID); err != nil {
		log.Warn().Err(err).Str("cart_id", cartID).Msg("forget last quote failed")
	}

	log.Info().Int64("order_id", order.ID).Str("cart_id", cartID).Msg("order placed")
	respondJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, customerTokenFrom(r.Context()))
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(r, "order_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a positive integer")
		return
	}

	order, err := h.orders.GetOrder(ctx, customerTokenFrom(r.Context()), id)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// CancelOrder only reaches the backend when the server itself reports the
// order as cancellable.
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(r, "order_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a positive integer")
		return
	}

	var req CancelOrderRequestDTO
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	token := customerTokenFrom(r.Context())
	order, err := h.orders.GetOrder(ctx, token, id)
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	if !order.CanCancel {
		respondError(w, http.StatusConflict, "order_not_cancellable", "this order can no longer be cancelled")
		return
	}

	cancelled, err := h.orders.CancelOrder(ctx, token, id, strings.TrimSpace(req.Reason))
	if err != nil {
		handleBackendError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cancelled)
}
