package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	ID                int64            `json:"id"`
	Code              string           `json:"code"`
	DiscountPercent   decimal.Decimal  `json:"discount_percent"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	UsageLimit        *int             `json:"usage_limit,omitempty"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	IsActive          bool             `json:"is_active"`
}

// CouponValidation is the server's verdict for a code against an order amount.
type CouponValidation struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Message        string          `json:"message,omitempty"`
}

func (v *CouponValidation) Applied(subtotal decimal.Decimal, at time.Time) *AppliedCoupon {
	return &AppliedCoupon{
		Code:              v.Code,
		DiscountAmount:    v.DiscountAmount,
		FinalAmount:       v.FinalAmount,
		ValidatedSubtotal: subtotal,
		ValidatedAt:       at,
	}
}
