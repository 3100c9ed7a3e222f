package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"duka-be/internal/apperror"
	"duka-be/internal/logger"
	"duka-be/internal/metrics"
	"duka-be/internal/money"
	"duka-be/internal/order"

	"go.uber.org/zap"
)

// Result says what a callback did. Every result is acknowledged to the gateway.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultOrphan    Result = "orphan"
	ResultConflict  Result = "conflict"
)

const gatewayActor = "mpesa"

type Reconciler interface {
	// Reconcile applies a raw gateway callback at most once. The error is for
	// operators only: callers acknowledge the gateway regardless.
	Reconcile(ctx context.Context, raw []byte) (Result, error)
}

type reconciler struct {
	orders  order.Service
	repo    Repository
	metrics *metrics.Payments
	loc     *time.Location
}

func NewReconciler(orders order.Service, repo Repository, m *metrics.Payments) Reconciler {
	return &reconciler{
		orders:  orders,
		repo:    repo,
		metrics: m,
		loc:     NairobiLocation(),
	}
}

func (r *reconciler) Reconcile(ctx context.Context, raw []byte) (Result, error) {
	r.metrics.Inc(metrics.Callbacks)
	log := logger.FromCtx(ctx).With(zap.String("component", "reconciler"))

	env, err := ParseCallback(raw)
	if err != nil {
		log.Warn("Unparseable gateway callback", zap.Error(err))
		return r.orphan(ctx, &OrphanCallback{Reason: "malformed payload", Payload: raw})
	}

	cb := env.Body.STKCallback
	log = log.With(
		logger.CheckoutRequestID(cb.CheckoutRequestID),
		logger.MerchantRequestID(cb.MerchantRequestID),
	)

	orphan := &OrphanCallback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		Payload:           raw,
	}

	if cb.ResultCode == nil {
		log.Warn("Gateway callback without result code")
		orphan.Reason = "missing result code"
		return r.orphan(logger.WithLogger(ctx, log), orphan)
	}
	log = log.With(zap.Int("result_code", *cb.ResultCode))
	ctx = logger.WithLogger(ctx, log)

	attempt, err := r.findAttempt(ctx, cb)
	if errors.Is(err, ErrAttemptNotFound) {
		log.Warn("Callback matches no payment attempt")
		orphan.Reason = "no matching payment attempt"
		return r.orphan(ctx, orphan)
	}
	if err != nil {
		log.Error("Failed to look up payment attempt", zap.Error(err))
		return "", err
	}

	log = log.With(logger.OrderID(attempt.OrderID), zap.String("attempt_id", attempt.ID))
	ctx = logger.WithLogger(ctx, log)

	if attempt.Outcome != OutcomePending {
		return r.duplicate(ctx, attempt, cb, orphan)
	}

	fin, target := r.finalization(ctx, attempt, cb, raw)
	if target == order.StatusPaid && fin.ReceiptNumber == nil {
		// a payment nobody can trace is not settled; the sweeper times the
		// attempt out and an operator resolves it from the orphan record
		log.Error("Success callback without receipt number; order left in processing")
		orphan.Reason = "success callback without receipt number"
		return r.orphan(ctx, orphan)
	}

	res, err := settle(ctx, r.orders, r.repo, attempt, fin, target, gatewayActor)
	if err != nil {
		log.Error("Failed to apply gateway callback", zap.Error(err))
		return "", err
	}

	switch res {
	case ResultApplied:
		r.metrics.Inc(metrics.Applied)
		log.Info("Gateway callback applied", zap.String("order_status", string(target)))
	case ResultDuplicate:
		r.metrics.Inc(metrics.Duplicates)
		log.Info("Payment attempt finalized concurrently; callback ignored")
	case ResultConflict:
		r.metrics.Inc(metrics.Conflicts)
	}
	return res, nil
}

func (r *reconciler) findAttempt(ctx context.Context, cb STKCallback) (*Attempt, error) {
	if cb.CheckoutRequestID != "" {
		a, err := r.repo.GetAttemptByCheckoutRequestID(ctx, cb.CheckoutRequestID)
		if !errors.Is(err, ErrAttemptNotFound) {
			return a, err
		}
	}
	if cb.MerchantRequestID != "" {
		return r.repo.GetAttemptByMerchantRequestID(ctx, cb.MerchantRequestID)
	}
	return nil, ErrAttemptNotFound
}

func (r *reconciler) finalization(ctx context.Context, a *Attempt, cb STKCallback, raw []byte) (Finalization, order.Status) {
	fin := Finalization{
		Outcome:     OutcomeFailed,
		ResultCode:  *cb.ResultCode,
		ResultDesc:  cb.ResultDesc,
		RawCallback: raw,
	}
	if !cb.Succeeded() {
		return fin, order.StatusCancelled
	}

	fin.Outcome = OutcomeSucceeded
	meta := cb.CallbackMetadata
	log := logger.FromCtx(ctx)

	if receipt, ok := meta.String("MpesaReceiptNumber"); ok && receipt != "" {
		fin.ReceiptNumber = &receipt
	}
	if phone, ok := meta.String("PhoneNumber"); ok {
		fin.PayerPhone = &phone
	}
	if ts, ok := meta.Time("TransactionDate", r.loc); ok {
		fin.TransactionDate = &ts
	}
	if amount, ok := meta.Decimal("Amount"); ok && !money.Equal(amount, a.Amount) {
		// money already moved; record it and let an operator decide
		log.Warn("Callback amount differs from requested amount",
			zap.String("callback_amount", amount.String()),
			zap.String("requested_amount", a.Amount.String()),
		)
	}

	return fin, order.StatusPaid
}

func (r *reconciler) duplicate(ctx context.Context, a *Attempt, cb STKCallback, orphan *OrphanCallback) (Result, error) {
	log := logger.FromCtx(ctx)
	r.metrics.Inc(metrics.Duplicates)

	if cb.Succeeded() && a.Outcome != OutcomeSucceeded {
		// the attempt was timed out or failed, yet the customer paid
		log.Error("Success callback for an attempt already finalized; refund or manual capture required",
			zap.String("outcome", string(a.Outcome)),
		)
		orphan.Reason = "success callback for finalized attempt"
		if _, err := r.orphan(ctx, orphan); err != nil {
			return "", err
		}
		return ResultDuplicate, nil
	}

	log.Info("Duplicate callback ignored", zap.String("outcome", string(a.Outcome)))
	return ResultDuplicate, nil
}

func (r *reconciler) orphan(ctx context.Context, o *OrphanCallback) (Result, error) {
	r.metrics.Inc(metrics.Orphans)
	if err := r.repo.SaveOrphanCallback(ctx, o); err != nil {
		logger.FromCtx(ctx).Error("Failed to record orphan callback",
			zap.String("reason", o.Reason),
			zap.ByteString("payload", o.Payload),
			zap.Error(err),
		)
		return ResultOrphan, err
	}
	return ResultOrphan, nil
}

// settle finalizes a pending attempt and moves its order out of processing.
// Both writes share one transaction. When the order already left processing
// (an admin cancelled it, say), the attempt is still finalized on its own so
// nothing stays pending, and the order keeps the status it has.
func settle(ctx context.Context, orders order.Service, repo Repository, a *Attempt, fin Finalization, target order.Status, actor string) (Result, error) {
	log := logger.FromCtx(ctx)
	expected := order.StatusProcessing

	_, err := orders.SetStatus(ctx, order.SetStatusInput{
		OrderID:  a.OrderID,
		Status:   target,
		Expected: &expected,
		Actor:    actor,
		WithinTx: func(tx *sql.Tx) error {
			won, err := repo.FinalizeAttemptTx(ctx, tx, a.ID, fin)
			if err != nil {
				return err
			}
			if !won {
				return apperror.Wrap(apperror.KindConflict, "payment attempt already finalized", errAttemptFinalized)
			}
			return nil
		},
	})
	if err == nil {
		return ResultApplied, nil
	}
	if errors.Is(err, errAttemptFinalized) {
		return ResultDuplicate, nil
	}
	if !apperror.IsKind(err, apperror.KindConflict) && !apperror.IsKind(err, apperror.KindState) {
		return "", err
	}

	won, ferr := repo.FinalizeAttempt(ctx, a.ID, fin)
	if ferr != nil {
		return "", ferr
	}
	if !won {
		return ResultDuplicate, nil
	}

	if fin.Outcome == OutcomeSucceeded {
		log.Error("Payment succeeded but order is no longer processing; refund required",
			zap.String("target_status", string(target)),
			zap.Error(err),
		)
	} else {
		log.Warn("Order already left processing; attempt finalized without status change",
			zap.String("target_status", string(target)),
			zap.Error(err),
		)
	}
	return ResultConflict, nil
}
