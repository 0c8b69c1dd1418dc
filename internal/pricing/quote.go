package pricing

import (
	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/shopspring/decimal"
)

type PriceSource string

const (
	// PriceSourceServer means the unit price came from a fresh product fetch.
	PriceSourceServer PriceSource = "server"
	// PriceSourceCached means the fetch failed or has not finished and the
	// price captured in the cart was used.
	PriceSourceCached PriceSource = "cached"
)

type QuoteLine struct {
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	FirstImage    string          `json:"first_image,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Strikethrough bool            `json:"strikethrough"`
	LineTotal     decimal.Decimal `json:"line_total"`
	PriceSource   PriceSource     `json:"price_source"`
	InStock       *bool           `json:"in_stock,omitempty"`
}

type CouponSummary struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	// Stale is set when re-validation could not reach the backend and the
	// previous amounts are still shown.
	Stale bool `json:"stale,omitempty"`
}

const NoticeCouponRemoved = "coupon_removed"

type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Quote is the displayed pricing of a cart. Total is the coupon's final
// amount while a coupon is applied, else the subtotal.
type Quote struct {
	CartID         string           `json:"cart_id"`
	Lines          []QuoteLine      `json:"lines"`
	ItemCount      int              `json:"item_count"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	Total          decimal.Decimal  `json:"total"`
	Coupon         *CouponSummary   `json:"coupon,omitempty"`
	Loading        bool             `json:"loading"`
	Notices        []Notice         `json:"notices,omitempty"`
}

// EffectivePrice picks the server sale price, then the server list price,
// then the price captured in the cart when the product could not be fetched
// or came back without any price.
func EffectivePrice(p *domain.Product, cached decimal.Decimal) (decimal.Decimal, PriceSource) {
	if p == nil {
		return cached, PriceSourceCached
	}
	if price, ok := p.EffectivePrice(); ok {
		return price, PriceSourceServer
	}
	return cached, PriceSourceCached
}

func newLine(item domain.CartLineItem, p *domain.Product) QuoteLine {
	unit, source := EffectivePrice(p, item.Price)
	l := QuoteLine{
		ProductID:     item.ProductID,
		Name:          item.Name,
		FirstImage:    item.FirstImage,
		Quantity:      item.Quantity,
		UnitPrice:     unit,
		OriginalPrice: item.Price,
		Strikethrough: unit.LessThan(item.Price),
		LineTotal:     unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
		PriceSource:   source,
	}
	if p != nil {
		inStock := p.IsInStock
		l.InStock = &inStock
		if l.Name == "" {
			l.Name = p.Name
		}
	}
	return l
}

func (q *Quote) applyCoupon(c *domain.AppliedCoupon, stale bool) {
	if c == nil {
		q.Coupon = nil
		q.DiscountAmount = nil
		q.Total = q.Subtotal
		return
	}
	discount := c.DiscountAmount
	q.Coupon = &CouponSummary{
		Code:           c.Code,
		DiscountAmount: c.DiscountAmount,
		FinalAmount:    c.FinalAmount,
		Stale:          stale,
	}
	q.DiscountAmount = &discount
	q.Total = c.FinalAmount
}
