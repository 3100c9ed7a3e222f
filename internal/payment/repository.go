package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

const (
	uniqueViolation      = "23505"
	onePendingConstraint = "payment_attempts_one_pending_per_order"
)

type Repository interface {
	// InsertAttemptTx writes a pending attempt inside the caller's transaction.
	// Returns ErrAttemptInFlight when the order already has a pending attempt.
	InsertAttemptTx(ctx context.Context, tx *sql.Tx, a *Attempt) error
	GetAttemptByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Attempt, error)
	GetAttemptByMerchantRequestID(ctx context.Context, merchantRequestID string) (*Attempt, error)
	ListAttemptsByOrder(ctx context.Context, orderID string) ([]Attempt, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Attempt, error)

	// FinalizeAttempt and FinalizeAttemptTx move a pending attempt to its
	// final outcome. They report false when the attempt was no longer pending.
	FinalizeAttempt(ctx context.Context, id string, f Finalization) (bool, error)
	FinalizeAttemptTx(ctx context.Context, tx *sql.Tx, id string, f Finalization) (bool, error)

	SaveOrphanCallback(ctx context.Context, o *OrphanCallback) error
	ListOrphanCallbacks(ctx context.Context, limit int) ([]OrphanCallback, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *repository) InsertAttemptTx(ctx context.Context, tx *sql.Tx, a *Attempt) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO payment_attempts (
			id, order_id, merchant_request_id, checkout_request_id,
			amount, phone, outcome
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`,
		a.ID,
		a.OrderID,
		a.MerchantRequestID,
		a.CheckoutRequestID,
		a.Amount,
		a.Phone,
		OutcomePending,
	).Scan(&a.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == onePendingConstraint {
		return ErrAttemptInFlight
	}
	if err != nil {
		return err
	}

	a.Outcome = OutcomePending
	return nil
}

const attemptColumns = `
	id, order_id, merchant_request_id, checkout_request_id, amount, phone,
	outcome, receipt_number, result_code, result_desc, raw_callback,
	transaction_date, payer_phone, created_at, finalized_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s scanner) (*Attempt, error) {
	var a Attempt
	err := s.Scan(
		&a.ID,
		&a.OrderID,
		&a.MerchantRequestID,
		&a.CheckoutRequestID,
		&a.Amount,
		&a.Phone,
		&a.Outcome,
		&a.ReceiptNumber,
		&a.ResultCode,
		&a.ResultDesc,
		&a.RawCallback,
		&a.TransactionDate,
		&a.PayerPhone,
		&a.CreatedAt,
		&a.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) getAttempt(ctx context.Context, where string, arg string) (*Attempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE `+where+` = $1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

func (r *repository) GetAttemptByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Attempt, error) {
	return r.getAttempt(ctx, "checkout_request_id", checkoutRequestID)
}

// GetAttemptByMerchantRequestID is a fallback for callbacks that omit the
// checkout id. Merchant ids are not unique across retries, so the newest wins.
func (r *repository) GetAttemptByMerchantRequestID(ctx context.Context, merchantRequestID string) (*Attempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts
		WHERE merchant_request_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, merchantRequestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

func (r *repository) listAttempts(ctx context.Context, query string, args ...any) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func (r *repository) ListAttemptsByOrder(ctx context.Context, orderID string) ([]Attempt, error) {
	return r.listAttempts(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts
		WHERE order_id = $1
		ORDER BY created_at DESC`, orderID)
}

func (r *repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Attempt, error) {
	return r.listAttempts(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts
		WHERE outcome = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, createdBefore, limit)
}

func (r *repository) FinalizeAttempt(ctx context.Context, id string, f Finalization) (bool, error) {
	return finalize(ctx, r.db, id, f)
}

func (r *repository) FinalizeAttemptTx(ctx context.Context, tx *sql.Tx, id string, f Finalization) (bool, error) {
	return finalize(ctx, tx, id, f)
}

func finalize(ctx context.Context, ex execer, id string, f Finalization) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		UPDATE payment_attempts
		SET outcome = $1,
			receipt_number = $2,
			result_code = $3,
			result_desc = $4,
			raw_callback = $5,
			transaction_date = $6,
			payer_phone = $7,
			finalized_at = NOW()
		WHERE id = $8 AND outcome = 'pending'
	`,
		f.Outcome,
		f.ReceiptNumber,
		f.ResultCode,
		f.ResultDesc,
		f.RawCallback,
		f.TransactionDate,
		f.PayerPhone,
		id,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) SaveOrphanCallback(ctx context.Context, o *OrphanCallback) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO payment_callback_orphans (
			merchant_request_id, checkout_request_id, result_code, reason, payload
		) VALUES ($1,$2,$3,$4,$5)
		RETURNING id, received_at
	`,
		o.MerchantRequestID,
		o.CheckoutRequestID,
		o.ResultCode,
		o.Reason,
		o.Payload,
	).Scan(&o.ID, &o.ReceivedAt)
}

func (r *repository) ListOrphanCallbacks(ctx context.Context, limit int) ([]OrphanCallback, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, merchant_request_id, checkout_request_id, result_code,
			reason, payload, received_at
		FROM payment_callback_orphans
		ORDER BY received_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orphans []OrphanCallback
	for rows.Next() {
		var o OrphanCallback
		if err := rows.Scan(
			&o.ID,
			&o.MerchantRequestID,
			&o.CheckoutRequestID,
			&o.ResultCode,
			&o.Reason,
			&o.Payload,
			&o.ReceivedAt,
		); err != nil {
			return nil, err
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}
