package cart

import (
	"context"
	"errors"

	"github.com/fjod/storefront-gateway/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
)

// Repository is the durable store for guest carts.
type Repository interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID string, item domain.CartLineItem) error
	UpdateItemQuantity(ctx context.Context, cartID string, productID int64, quantity int) error
	RemoveItem(ctx context.Context, cartID string, productID int64) error
	SetCoupon(ctx context.Context, cartID string, coupon *domain.AppliedCoupon) error
	DeleteCart(ctx context.Context, cartID string) error
}
