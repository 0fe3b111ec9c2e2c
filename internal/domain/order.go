package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending          OrderStatus = "pending"
	OrderProcessing       OrderStatus = "processing"
	OrderShipped          OrderStatus = "shipped"
	OrderDelivered        OrderStatus = "delivered"
	OrderCancelled        OrderStatus = "cancelled"
	OrderRefundProcessing OrderStatus = "refund_processing"
	OrderRefunded         OrderStatus = "refunded"
)

var validOrderStatuses = map[OrderStatus]bool{
	OrderPending:          true,
	OrderProcessing:       true,
	OrderShipped:          true,
	OrderDelivered:        true,
	OrderCancelled:        true,
	OrderRefundProcessing: true,
	OrderRefunded:         true,
}

func (s OrderStatus) Valid() bool {
	return validOrderStatuses[s]
}

// LineItem is a snapshot of a book at the time the order was placed.
type LineItem struct {
	BookID   string          `json:"bookId"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID               uuid.UUID         `json:"id"`
	Email            string            `json:"email"`
	Name             string            `json:"name"`
	Phone            string            `json:"phone"`
	Address          string            `json:"address"`
	Products         []LineItem        `json:"products"`
	TotalPrice       decimal.Decimal   `json:"totalPrice"`
	Status           OrderStatus       `json:"status"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	PaymentReference *PaymentReference `json:"paymentReference,omitempty"`
	CancelledAt      *time.Time        `json:"cancelledAt,omitempty"`
	RefundedAt       *time.Time        `json:"refundedAt,omitempty"`
	RefundReason     string            `json:"refundReason,omitempty"`
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// NewOrder builds a pending order. A zero total means the caller did not
// send one and the computed sum is used; otherwise the two must agree.
func NewOrder(email, name, phone, address string, method PaymentMethod, items []LineItem, total decimal.Decimal, now time.Time) (*Order, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, method)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order has no products", ErrValidation)
	}

	sum := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for book %s must be at least 1", ErrValidation, item.BookID)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price for book %s is negative", ErrValidation, item.BookID)
		}
		sum = sum.Add(item.Subtotal())
	}

	if total.IsNegative() {
		return nil, fmt.Errorf("%w: total price is negative", ErrValidation)
	}
	if !total.IsZero() && !total.Equal(sum) {
		return nil, fmt.Errorf("%w: total price %s does not match line items %s", ErrValidation, total, sum)
	}

	return &Order{
		ID:            uuid.New(),
		Email:         email,
		Name:          name,
		Phone:         phone,
		Address:       address,
		Products:      items,
		TotalPrice:    sum,
		Status:        OrderPending,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// OwnedBy reports whether the principal may act on the order as its customer.
func (o *Order) OwnedBy(p Principal) bool {
	return p.Admin || (p.Email != "" && p.Email == o.Email)
}
