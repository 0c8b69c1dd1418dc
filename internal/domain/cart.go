package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinLineQuantity = 1
	MaxLineQuantity = 99
)

// CartLineItem keeps the price captured when the product was added so the
// storefront can strike it through when the current price is lower.
type CartLineItem struct {
	ProductID  int64            `json:"product_id"`
	Name       string           `json:"name"`
	Price      decimal.Decimal  `json:"price"`
	SalePrice  *decimal.Decimal `json:"sale_price,omitempty"`
	Quantity   int              `json:"quantity"`
	FirstImage string           `json:"first_image,omitempty"`
	AddedAt    time.Time        `json:"added_at"`
}

func (i CartLineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// AppliedCoupon holds the server's answer for a coupon together with the
// subtotal it was validated against.
type AppliedCoupon struct {
	Code              string          `json:"code"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	FinalAmount       decimal.Decimal `json:"final_amount"`
	ValidatedSubtotal decimal.Decimal `json:"validated_subtotal"`
	ValidatedAt       time.Time       `json:"validated_at"`
}

type Cart struct {
	ID        string         `json:"id"`
	Items     []CartLineItem `json:"items"`
	Coupon    *AppliedCoupon `json:"coupon,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func NewCart(id string) *Cart {
	now := time.Now()
	return &Cart{
		ID:        id,
		Items:     []CartLineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// CachedSubtotal sums the captured prices without asking the backend.
func (c *Cart) CachedSubtotal() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// ProductIDs returns each product id once, in first-seen order.
func (c *Cart) ProductIDs() []int64 {
	if c == nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(c.Items))
	ids := make([]int64, 0, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

// Fingerprint identifies the cart contents by product and quantity only.
func (c *Cart) Fingerprint() string {
	if c.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		parts = append(parts, fmt.Sprintf("%dx%d", it.ProductID, it.Quantity))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func ValidQuantity(q int) bool {
	return q >= MinLineQuantity && q <= MaxLineQuantity
}
