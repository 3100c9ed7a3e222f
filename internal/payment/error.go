package payment

import "errors"

var (
	ErrAttemptNotFound    = errors.New("payment attempt not found")
	ErrAttemptInFlight    = errors.New("payment already in progress for this order")
	ErrInvalidPhone       = errors.New("phone must be a Kenyan mobile number")
	ErrMethodNotSupported = errors.New("payment method not supported")

	// errAttemptFinalized aborts a settle transaction when another writer
	// finalized the attempt first.
	errAttemptFinalized = errors.New("payment attempt already finalized")
)
