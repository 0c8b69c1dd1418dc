package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Price           *decimal.Decimal `json:"price"`
	SalePrice       *decimal.Decimal `json:"sale_price"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	IsInStock       bool             `json:"is_in_stock"`
	ImageURLs       []string         `json:"image_urls"`
	Specification   json.RawMessage  `json:"specification,omitempty"`
	Category        json.RawMessage  `json:"category,omitempty"`
}

// EffectivePrice is the sale price when the backend reports one, else the
// list price. ok is false when the backend reported neither.
func (p *Product) EffectivePrice() (price decimal.Decimal, ok bool) {
	switch {
	case p.SalePrice != nil:
		return *p.SalePrice, true
	case p.Price != nil:
		return *p.Price, true
	}
	return decimal.Zero, false
}

func (p *Product) FirstImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

const (
	MinRating = 1
	MaxRating = 5

	MaxReviewCommentLength = 2000
)

type Review struct {
	ID        int64     `json:"id"`
	Product   int64     `json:"product"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
