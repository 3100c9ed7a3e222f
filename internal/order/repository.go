package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"duka-be/internal/db"
	"duka-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusChange is a compare-and-set request: the order moves From -> To only
// if its stored status is still From. WithinTx, when set, runs in the same
// transaction after the status row has been updated.
type StatusChange struct {
	OrderID  string
	From     Status
	To       Status
	Actor    string
	WithinTx func(tx *sql.Tx) error
}

type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	CompareAndSetStatus(ctx context.Context, change StatusChange) (*StatusEvent, error)
	ListUnnotifiedEvents(ctx context.Context, createdBefore time.Time, limit int) ([]StatusEvent, error)
	MarkEventNotified(ctx context.Context, eventID int64) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrder(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		logger.OrderID(o.ID),
		zap.Int("item_count", len(o.Items)),
	)

	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (
				id, user_id, status, subtotal, shipping_fee,
				total, payment_method, shipping_address
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING created_at, updated_at
		`,
			o.ID,
			o.UserID,
			o.Status,
			o.Subtotal,
			o.ShippingFee,
			o.Total,
			o.PaymentMethod,
			string(address),
		).Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			log.Error("failed to insert order", zap.Error(err))
			return err
		}

		for i, item := range o.Items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (
					id, order_id, product_id, product_name,
					product_image, price, shade, quantity
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`,
				item.ID,
				o.ID,
				item.ProductID,
				item.ProductName,
				item.ProductImage,
				item.Price,
				item.Shade,
				item.Quantity,
			)
			if err != nil {
				log.Error("failed to insert order item",
					zap.Int("item_index", i),
					zap.String("product_id", item.ProductID),
					zap.Error(err),
				)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug("order transaction committed")
	return nil
}

// GetOrder treats an id that is not a UUID as unknown, since the column
// type would reject it with a cast error.
func (r *repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}

	var (
		o       Order
		address []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, subtotal, shipping_fee, total,
			payment_method, shipping_address, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.Subtotal,
		&o.ShippingFee,
		&o.Total,
		&o.PaymentMethod,
		&address,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, product_image,
			price, shade, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.ProductImage,
			&item.Price,
			&item.Shade,
			&item.Quantity,
		); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) CompareAndSetStatus(ctx context.Context, change StatusChange) (*StatusEvent, error) {
	ev := StatusEvent{
		OrderID: change.OrderID,
		From:    change.From,
		To:      change.To,
		Actor:   change.Actor,
	}

	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE orders
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = $3
			RETURNING user_id, total
		`, change.To, change.OrderID, change.From).Scan(&ev.UserID, &ev.Total)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusChanged
		}
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_status_events (order_id, from_status, to_status, actor)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, change.OrderID, change.From, change.To, change.Actor).Scan(&ev.ID, &ev.CreatedAt)
		if err != nil {
			return err
		}

		if change.WithinTx != nil {
			return change.WithinTx(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ev, nil
}

func (r *repository) ListUnnotifiedEvents(ctx context.Context, createdBefore time.Time, limit int) ([]StatusEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.order_id, o.user_id, o.total, e.from_status,
			e.to_status, e.actor, e.created_at
		FROM order_status_events e
		JOIN orders o ON o.id = e.order_id
		WHERE e.notified_at IS NULL AND e.created_at < $1
		ORDER BY e.created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StatusEvent
	for rows.Next() {
		var ev StatusEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.OrderID,
			&ev.UserID,
			&ev.Total,
			&ev.From,
			&ev.To,
			&ev.Actor,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func (r *repository) MarkEventNotified(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE order_status_events
		SET notified_at = NOW()
		WHERE id = $1 AND notified_at IS NULL
	`, eventID)
	return err
}
