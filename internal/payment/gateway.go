package payment

import (
	"context"
	"fmt"

	"duka-be/internal/order"
)

// PushRequest asks the customer's phone to approve a payment. Amount is in
// whole shillings.
type PushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

type PushResult struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

// Gateway starts an asynchronous payment. The final result arrives later
// through the gateway callback.
type Gateway interface {
	Push(ctx context.Context, req PushRequest) (*PushResult, error)
}

// RejectedError is a request the gateway understood and refused.
type RejectedError struct {
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request (%s): %s", e.Code, e.Description)
}

// UnsupportedGateway keeps the initiation contract for methods that have no
// backend yet.
type UnsupportedGateway struct {
	Method order.PaymentMethod
}

func (g UnsupportedGateway) Push(ctx context.Context, req PushRequest) (*PushResult, error) {
	return nil, fmt.Errorf("%s: %w", g.Method, ErrMethodNotSupported)
}
