package backend

import (
	"context"
	"errors"
	"net/http"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/shopspring/decimal"
)

const couponValidatePath = "/api/coupons/validate/"

type validateCouponRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

type validateCouponResponse struct {
	Valid          *bool           `json:"valid"`
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Message        string          `json:"message"`
}

// ValidateCoupon asks the backend whether code applies to amount. A 4xx answer
// is reported as an invalid coupon rather than an error, so callers only see
// errors for transport trouble.
func (c *Client) ValidateCoupon(ctx context.Context, token, code string, amount decimal.Decimal) (*domain.CouponValidation, error) {
	var resp validateCouponResponse
	err := c.call(ctx, http.MethodPost, couponValidatePath, token, validateCouponRequest{Code: code, OrderAmount: amount}, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status != http.StatusUnauthorized {
		return &domain.CouponValidation{Valid: false, Code: code, Message: apiErr.Message}, nil
	}
	if err != nil {
		return nil, err
	}

	v := &domain.CouponValidation{
		Valid:          resp.Valid == nil || *resp.Valid,
		Code:           resp.Code,
		DiscountAmount: resp.DiscountAmount,
		FinalAmount:    resp.FinalAmount,
		Message:        resp.Message,
	}
	if v.Code == "" {
		v.Code = code
	}
	return v, nil
}
