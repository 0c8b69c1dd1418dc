package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyCart = errors.New("cart is empty")

// CouponRejectedError is returned when the backend refuses a coupon code.
type CouponRejectedError struct {
	Code    string
	Message string
}

func (e *CouponRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coupon %s rejected", e.Code)
	}
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Message)
}

type ProductGetter interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type CouponValidator interface {
	ValidateCoupon(ctx context.Context, token, code string, amount decimal.Decimal) (*domain.CouponValidation, error)
}

type CouponStore interface {
	SetCoupon(ctx context.Context, cartID string, coupon *domain.AppliedCoupon) error
	ClearCoupon(ctx context.Context, cartID string) error
}

type Options struct {
	FetchTimeout  time.Duration
	MaxConcurrent int
}

type Reconciler struct {
	products      ProductGetter
	coupons       CouponValidator
	carts         CouponStore
	quotes        LastQuoteStore
	fetchTimeout  time.Duration
	maxConcurrent int
	now           func() time.Time
	log           zerolog.Logger
}

func NewReconciler(products ProductGetter, coupons CouponValidator, carts CouponStore, quotes LastQuoteStore, opts Options, log zerolog.Logger) *Reconciler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 3 * time.Second
	}
	return &Reconciler{
		products:      products,
		coupons:       coupons,
		carts:         carts,
		quotes:        quotes,
		fetchTimeout:  opts.FetchTimeout,
		maxConcurrent: opts.MaxConcurrent,
		now:           time.Now,
		log:           log.With().Str("component", "pricing").Logger(),
	}
}

// Provisional is what is shown while fetches are in flight: the last
// reconciled subtotal for the same cart contents, else the sum of the prices
// captured in the cart.
func (r *Reconciler) Provisional(ctx context.Context, cart *domain.Cart) Quote {
	q := Quote{
		CartID:    cart.ID,
		Lines:     make([]QuoteLine, 0, len(cart.Items)),
		ItemCount: cart.ItemCount(),
		Subtotal:  cart.CachedSubtotal(),
		Loading:   true,
	}
	for _, item := range cart.Items {
		q.Lines = append(q.Lines, newLine(item, nil))
	}

	if !cart.IsEmpty() {
		last, err := r.quotes.Get(ctx, cart.ID)
		switch {
		case err == nil && last.Fingerprint == cart.Fingerprint():
			q.Subtotal = last.Subtotal
		case err != nil && !errors.Is(err, ErrNoLastQuote):
			r.log.Warn().Err(err).Str("cart_id", cart.ID).Msg("last quote lookup failed")
		}
	}

	q.applyCoupon(cart.Coupon, false)
	return q
}

// Reconcile fetches every distinct product once, concurrently, and prices
// each line from what came back. A failed fetch only affects its own lines.
// An error is returned only when ctx itself is done.
func (r *Reconciler) Reconcile(ctx context.Context, cart *domain.Cart, token string) (Quote, error) {
	q := Quote{
		CartID:    cart.ID,
		Lines:     make([]QuoteLine, 0, len(cart.Items)),
		ItemCount: cart.ItemCount(),
		Subtotal:  decimal.Zero,
		Total:     decimal.Zero,
	}
	if cart.IsEmpty() {
		if cart.Coupon != nil {
			if err := r.carts.ClearCoupon(ctx, cart.ID); err != nil {
				r.log.Warn().Err(err).Str("cart_id", cart.ID).Msg("clear coupon on empty cart failed")
			}
		}
		return q, nil
	}

	products, err := r.fetch(ctx, cart.ProductIDs())
	if err != nil {
		return Quote{}, err
	}

	for _, item := range cart.Items {
		l := newLine(item, products[item.ProductID])
		q.Lines = append(q.Lines, l)
		q.Subtotal = q.Subtotal.Add(l.LineTotal)
	}
	r.remember(ctx, cart, q.Subtotal)

	coupon, stale, notice := r.revalidate(ctx, cart, q.Subtotal, token)
	q.applyCoupon(coupon, stale)
	if notice != nil {
		q.Notices = append(q.Notices, *notice)
	}
	return q, nil
}

// ApplyCoupon validates code against the freshly reconciled subtotal and
// stores the server's amounts on the cart.
func (r *Reconciler) ApplyCoupon(ctx context.Context, cart *domain.Cart, token, code string) (Quote, error) {
	if cart.IsEmpty() {
		return Quote{}, ErrEmptyCart
	}

	withoutCoupon := *cart
	withoutCoupon.Coupon = nil
	q, err := r.Reconcile(ctx, &withoutCoupon, token)
	if err != nil {
		return Quote{}, err
	}

	v, err := r.coupons.ValidateCoupon(ctx, token, code, q.Subtotal)
	if err != nil {
		return Quote{}, fmt.Errorf("validate coupon: %w", err)
	}
	if !v.Valid {
		return Quote{}, &CouponRejectedError{Code: code, Message: v.Message}
	}

	applied := v.Applied(q.Subtotal, r.now())
	if err := r.carts.SetCoupon(ctx, cart.ID, applied); err != nil {
		return Quote{}, fmt.Errorf("store coupon: %w", err)
	}
	q.applyCoupon(applied, false)
	return q, nil
}

// RemoveCoupon drops the coupon; the total reverts to the subtotal.
func (r *Reconciler) RemoveCoupon(ctx context.Context, cart *domain.Cart, token string) (Quote, error) {
	if err := r.carts.ClearCoupon(ctx, cart.ID); err != nil {
		return Quote{}, fmt.Errorf("clear coupon: %w", err)
	}
	withoutCoupon := *cart
	withoutCoupon.Coupon = nil
	return r.Reconcile(ctx, &withoutCoupon, token)
}

func (r *Reconciler) fetch(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	results := make([]*domain.Product, len(ids))

	// not errgroup.WithContext: one failed fetch must not cancel the others
	var g errgroup.Group
	g.SetLimit(r.maxConcurrent)
	for i, id := range ids {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
			defer cancel()

			p, err := r.products.GetProduct(fetchCtx, id)
			if err != nil {
				r.log.Warn().Err(err).Int64("product_id", id).Msg("price fetch failed, using cart price")
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byID := make(map[int64]*domain.Product, len(ids))
	for i, id := range ids {
		if results[i] != nil {
			byID[id] = results[i]
		}
	}
	return byID, nil
}

func (r *Reconciler) remember(ctx context.Context, cart *domain.Cart, subtotal decimal.Decimal) {
	last := LastQuote{
		Subtotal:    subtotal,
		Fingerprint: cart.Fingerprint(),
		ComputedAt:  r.now(),
	}
	if err := r.quotes.Save(ctx, cart.ID, last); err != nil {
		r.log.Warn().Err(err).Str("cart_id", cart.ID).Msg("save last quote failed")
	}
}

// revalidate re-checks an applied coupon once when the subtotal moved since
// it was validated. A rejection removes it; an unreachable backend keeps the
// old amounts and marks them stale.
func (r *Reconciler) revalidate(ctx context.Context, cart *domain.Cart, subtotal decimal.Decimal, token string) (*domain.AppliedCoupon, bool, *Notice) {
	c := cart.Coupon
	if c == nil || c.ValidatedSubtotal.Equal(subtotal) {
		return c, false, nil
	}

	v, err := r.coupons.ValidateCoupon(ctx, token, c.Code, subtotal)
	if err != nil {
		r.log.Warn().Err(err).Str("cart_id", cart.ID).Str("coupon", c.Code).Msg("coupon revalidation failed")
		return c, true, nil
	}

	if !v.Valid {
		if err := r.carts.ClearCoupon(ctx, cart.ID); err != nil {
			r.log.Warn().Err(err).Str("cart_id", cart.ID).Msg("clear rejected coupon failed")
		}
		return nil, false, &Notice{Code: NoticeCouponRemoved, Message: v.Message}
	}

	updated := v.Applied(subtotal, r.now())
	if err := r.carts.SetCoupon(ctx, cart.ID, updated); err != nil {
		r.log.Warn().Err(err).Str("cart_id", cart.ID).Msg("store revalidated coupon failed")
	}
	return updated, false, nil
}
