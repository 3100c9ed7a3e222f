package payment

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"duka-be/internal/apperror"
	"duka-be/internal/auth"
	"duka-be/internal/logger"
	"duka-be/internal/metrics"
	"duka-be/internal/money"
	"duka-be/internal/order"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// accountReferenceLen is the longest AccountReference the gateway accepts.
const accountReferenceLen = 12

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

type InitiateInput struct {
	OrderID string
	Amount  decimal.Decimal
	Phone   string
	Method  order.PaymentMethod
}

type InitiateResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
	Warning           string
}

type Initiator interface {
	Initiate(ctx context.Context, caller auth.Principal, in InitiateInput) (*InitiateResult, error)
}

type initiator struct {
	orders   order.Service
	repo     Repository
	gateways map[order.PaymentMethod]Gateway
	metrics  *metrics.Payments
}

func NewInitiator(orders order.Service, repo Repository, gateways map[order.PaymentMethod]Gateway, m *metrics.Payments) Initiator {
	return &initiator{
		orders:   orders,
		repo:     repo,
		gateways: gateways,
		metrics:  m,
	}
}

// Initiate starts a payment for a pending order. The order moves to
// processing and the attempt is recorded in one transaction, only after the
// gateway has accepted the push.
func (s *initiator) Initiate(ctx context.Context, caller auth.Principal, in InitiateInput) (*InitiateResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Initiate"),
		logger.OrderID(in.OrderID),
		zap.String("payment_method", string(in.Method)),
		zap.String("caller", caller.Actor()),
	)

	if strings.TrimSpace(in.OrderID) == "" {
		return nil, apperror.Validation("orderId is required")
	}
	if !in.Method.Valid() {
		return nil, apperror.Validation("paymentMethod must be card or mpesa")
	}
	if !in.Amount.IsPositive() {
		return nil, apperror.Validation("amount must be greater than zero")
	}

	o, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	if !caller.CanActFor(o.UserID) {
		log.Warn("caller does not own order")
		return nil, apperror.Authorization("cannot pay for others' orders")
	}

	if o.Status != order.StatusPending {
		log.Info("rejected initiation for non-pending order", logger.Status(string(o.Status)))
		return nil, apperror.State("order is " + string(o.Status) + ", payment can only start from pending")
	}

	if !money.Equal(in.Amount, o.Total) {
		log.Warn("amount mismatch",
			zap.String("requested", in.Amount.String()),
			zap.String("total", o.Total.String()),
		)
		return nil, apperror.AmountMismatch("amount does not match order total")
	}

	gw, ok := s.gateways[in.Method]
	if !ok {
		return nil, apperror.Validation("payment method not supported")
	}

	phone := in.Phone
	if in.Method == order.MethodMpesa {
		if phone, err = NormalizePhone(in.Phone); err != nil {
			return nil, apperror.Wrap(apperror.KindValidation, err.Error(), err)
		}
	}

	units, whole := money.WholeUnits(o.Total)
	if !whole {
		log.Warn("order total has cents", zap.String("total", o.Total.String()))
		return nil, apperror.Validation("order total must be whole shillings to pay with " + string(in.Method))
	}

	ref := accountReference(o.ID)
	push, err := gw.Push(ctx, PushRequest{
		Phone:            phone,
		Amount:           units,
		AccountReference: ref,
		Description:      "Order " + ref,
	})
	if err != nil {
		return nil, s.gatewayError(log, err)
	}

	log = log.With(
		logger.CheckoutRequestID(push.CheckoutRequestID),
		logger.MerchantRequestID(push.MerchantRequestID),
	)

	attempt := &Attempt{
		ID:                uuid.NewString(),
		OrderID:           o.ID,
		MerchantRequestID: push.MerchantRequestID,
		CheckoutRequestID: push.CheckoutRequestID,
		Amount:            o.Total,
		Phone:             phone,
	}

	expected := order.StatusPending
	tr, err := s.orders.SetStatus(ctx, order.SetStatusInput{
		OrderID:  o.ID,
		Status:   order.StatusProcessing,
		Expected: &expected,
		Actor:    caller.Actor(),
		WithinTx: func(tx *sql.Tx) error {
			err := s.repo.InsertAttemptTx(ctx, tx, attempt)
			if errors.Is(err, ErrAttemptInFlight) {
				return apperror.Wrap(apperror.KindState, err.Error(), err)
			}
			return err
		},
	})
	if err != nil {
		// the push is live on the customer's phone; its callback will be
		// recorded as an orphan
		log.Error("gateway accepted push but order could not move to processing", zap.Error(err))
		if apperror.IsKind(err, apperror.KindConflict) {
			return nil, apperror.State("order is no longer pending")
		}
		return nil, err
	}

	s.metrics.Inc(metrics.Initiations)
	log.Info("payment initiated", zap.String("attempt_id", attempt.ID))

	return &InitiateResult{
		CheckoutRequestID: push.CheckoutRequestID,
		MerchantRequestID: push.MerchantRequestID,
		CustomerMessage:   push.CustomerMessage,
		Warning:           tr.Warning,
	}, nil
}

func (s *initiator) gatewayError(log *zap.Logger, err error) error {
	if errors.Is(err, ErrMethodNotSupported) {
		return apperror.Wrap(apperror.KindValidation, "payment method not supported", err)
	}

	s.metrics.Inc(metrics.GatewayErrors)

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		log.Warn("gateway rejected push", zap.String("code", rejected.Code), zap.String("description", rejected.Description))
		return apperror.Gateway(rejected.Description, err)
	}

	log.Error("gateway request failed", zap.Error(err))
	return apperror.Gateway("payment provider unavailable", err)
}

// accountReference is the order id reduced to what the gateway accepts.
func accountReference(orderID string) string {
	ref := strings.ToUpper(nonAlnum.ReplaceAllString(orderID, ""))
	if len(ref) > accountReferenceLen {
		ref = ref[:accountReferenceLen]
	}
	return ref
}
