package order

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")

	// -- Validation --
	ErrNoItems              = errors.New("order must contain at least one item")
	ErrInvalidQuantity      = errors.New("item quantity must be greater than zero")
	ErrInvalidPrice         = errors.New("item price must not be negative")
	ErrInvalidShippingFee   = errors.New("shipping fee must not be negative")
	ErrInvalidPaymentMethod = errors.New("payment method must be card or mpesa")
	ErrIncompleteAddress    = errors.New("shipping address requires name, phone, address line and city")
	ErrMissingProduct       = errors.New("item requires product id and name")
	ErrMissingOwner         = errors.New("order owner is required")

	// ErrStatusChanged is returned by Repository.CompareAndSetStatus when the
	// stored status no longer matches the expected one.
	ErrStatusChanged = errors.New("order status changed")
)
