package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type FlashSale struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	DiscountPercent decimal.Decimal    `json:"discount_percent"`
	StartDate       time.Time          `json:"start_date"`
	EndDate         time.Time          `json:"end_date"`
	IsActive        *bool              `json:"is_active,omitempty"`
	Products        []FlashSaleProduct `json:"products"`
}

func (f *FlashSale) ProductIDs() []int64 {
	ids := make([]int64, 0, len(f.Products))
	for _, p := range f.Products {
		ids = append(ids, p.ID)
	}
	return ids
}

// FlashSaleProduct is either a bare product id or an embedded product,
// depending on which serializer the backend used.
type FlashSaleProduct struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	ImageURLs []string         `json:"image_urls,omitempty"`
}

func (p *FlashSaleProduct) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var id int64
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return fmt.Errorf("flash sale product: %w", err)
		}
		*p = FlashSaleProduct{ID: id}
		return nil
	}
	type plain FlashSaleProduct
	var v plain
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return fmt.Errorf("flash sale product: %w", err)
	}
	*p = FlashSaleProduct(v)
	return nil
}
