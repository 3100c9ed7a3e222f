package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Attempt is one push request the gateway accepted for an order. It is
// created pending and finalized exactly once, by a callback or the sweeper.
type Attempt struct {
	ID                string
	OrderID           string
	MerchantRequestID string
	CheckoutRequestID string
	Amount            decimal.Decimal
	Phone             string
	Outcome           Outcome
	ReceiptNumber     *string
	ResultCode        *int
	ResultDesc        *string
	RawCallback       []byte
	TransactionDate   *time.Time
	PayerPhone        *string
	CreatedAt         time.Time
	FinalizedAt       *time.Time
}

// Finalization is the terminal result written onto a pending attempt.
type Finalization struct {
	Outcome         Outcome
	ReceiptNumber   *string
	ResultCode      int
	ResultDesc      string
	RawCallback     []byte
	TransactionDate *time.Time
	PayerPhone      *string
}

// OrphanCallback is a gateway callback that could not be matched to a
// pending attempt. Kept for manual reconciliation.
type OrphanCallback struct {
	ID                int64
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        *int
	Reason            string
	Payload           []byte
	ReceivedAt        time.Time
}
