package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

type PaymentMethod string

const (
	MethodCard  PaymentMethod = "card"
	MethodMpesa PaymentMethod = "mpesa"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodCard || m == MethodMpesa
}

type ShippingAddress struct {
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	AddressLine string  `json:"addressLine"`
	City        string  `json:"city"`
	PostalCode  *string `json:"postalCode,omitempty"`
}

type Order struct {
	ID              string
	UserID          string
	Status          Status
	Subtotal        decimal.Decimal
	ShippingFee     decimal.Decimal
	Total           decimal.Decimal
	PaymentMethod   PaymentMethod
	ShippingAddress ShippingAddress
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Items           []OrderItem
}

// OrderItem fields are a snapshot of the product at purchase time and are
// never re-read from the catalog.
type OrderItem struct {
	ID           string
	OrderID      string
	ProductID    string
	ProductName  string
	ProductImage *string
	Price        decimal.Decimal
	Shade        *string
	Quantity     int
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ItemInput struct {
	ProductID    string
	ProductName  string
	ProductImage *string
	Price        decimal.Decimal
	Shade        *string
	Quantity     int
}

type CreateOrderInput struct {
	UserID          string
	Items           []ItemInput
	ShippingFee     decimal.Decimal
	PaymentMethod   PaymentMethod
	ShippingAddress ShippingAddress
}

// StatusEvent is one committed status transition. It doubles as the audit
// trail and the notification outbox: NotifiedAt stays nil until the owner
// email has been delivered.
type StatusEvent struct {
	ID         int64
	OrderID    string
	UserID     string
	Total      decimal.Decimal
	From       Status
	To         Status
	Actor      string
	CreatedAt  time.Time
	NotifiedAt *time.Time
}

// Notifier receives every committed transition. Notify must not block; an
// error means the event could not be queued and is reported as a warning.
type Notifier interface {
	Notify(ctx context.Context, ev StatusEvent) error
}
