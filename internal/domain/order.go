package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusConfirmed:  {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderStatuses[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type OrderItem struct {
	Product     int64           `json:"product"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Order is the backend's order as-is; amounts are never recomputed here.
type Order struct {
	ID                 int64            `json:"id"`
	CustomerName       string           `json:"customer_name"`
	CustomerPhone      string           `json:"customer_phone"`
	CustomerAddress    string           `json:"customer_address"`
	Items              []OrderItem      `json:"items"`
	OrderStatus        OrderStatus      `json:"order_status"`
	FinalAmount        decimal.Decimal  `json:"final_amount"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount,omitempty"`
	CouponCode         string           `json:"coupon_code,omitempty"`
	PaymentMethod      string           `json:"payment_method,omitempty"`
	CanCancel          bool             `json:"can_cancel"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

type OrderRequestItem struct {
	Product  int64           `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderRequest struct {
	CustomerName    string             `json:"customer_name"`
	CustomerPhone   string             `json:"customer_phone"`
	CustomerAddress string             `json:"customer_address"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	Items           []OrderRequestItem `json:"items"`
}

// NewOrderRequest builds the order payload from the cart lines and any applied coupon.
func NewOrderRequest(cart *Cart, name, phone, address, paymentMethod string) OrderRequest {
	req := OrderRequest{
		CustomerName:    name,
		CustomerPhone:   phone,
		CustomerAddress: address,
		PaymentMethod:   paymentMethod,
		Items:           make([]OrderRequestItem, 0, len(cart.Items)),
	}
	for _, it := range cart.Items {
		req.Items = append(req.Items, OrderRequestItem{
			Product:  it.ProductID,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}
	if cart.Coupon != nil {
		req.CouponCode = cart.Coupon.Code
	}
	return req
}
