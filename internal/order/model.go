package order

import (
	"time"

	"checkout-core/internal/address"
)

type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusAccepted OrderStatus = "ACCEPTED"
	StatusRejected OrderStatus = "REJECTED"
	StatusCanceled OrderStatus = "CANCELED"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Item is a cart line frozen at intent creation.
type Item struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Price     int64   `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
	Color     *string `json:"color,omitempty"`
	Size      *string `json:"size,omitempty"`
}

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type Order struct {
	OrderID       string          `json:"orderId"`
	Status        OrderStatus     `json:"status"`
	Items         []Item          `json:"items"`
	Address       address.Address `json:"address"`
	Totals        Totals          `json:"totals"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	IntentID      string          `json:"intentId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`

	// WeakID is set when OrderID came from the latest-order lookup rather
	// than the finalize response.
	WeakID bool `json:"weakId,omitempty"`
}

type FinalizeRequest struct {
	Address        address.Address `json:"shippingAddress"`
	ShippingOption string          `json:"shippingOption"`
	Totals         Totals          `json:"totals"`
	Items          []Item          `json:"items"`
	IntentID       string          `json:"intentId"`
	PaymentMethod  string          `json:"paymentMethod,omitempty"`
}
