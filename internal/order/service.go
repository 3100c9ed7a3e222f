package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"duka-be/internal/apperror"
	"duka-be/internal/logger"
	"duka-be/internal/money"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationWarning is returned to callers of SetStatus when the status
// changed but the owner notification could not be queued.
const NotificationWarning = "order updated but notification failed"

type Service interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderForUser(ctx context.Context, id, userID string, isAdmin bool) (*Order, error)
	SetStatus(ctx context.Context, in SetStatusInput) (*Transition, error)
}

// SetStatusInput drives the single status mutation entry point. Expected,
// when set, must equal the stored status or the call fails with a conflict.
type SetStatusInput struct {
	OrderID  string
	Status   Status
	Expected *Status
	Actor    string
	WithinTx func(tx *sql.Tx) error
}

type Transition struct {
	Order   *Order
	Event   StatusEvent
	Warning string
}

type service struct {
	repo     Repository
	notifier Notifier
}

func NewService(repo Repository, notifier Notifier) Service {
	return &service{
		repo:     repo,
		notifier: notifier,
	}
}

func (s *service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.String("user_id", in.UserID),
		zap.Int("item_count", len(in.Items)),
	)

	if err := validateCreateInput(in); err != nil {
		log.Warn("invalid order input", zap.Error(err))
		return nil, apperror.Wrap(apperror.KindValidation, err.Error(), err)
	}

	o := &Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Status:          StatusPending,
		ShippingFee:     money.Round(in.ShippingFee),
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: in.ShippingAddress,
		Items:           make([]OrderItem, 0, len(in.Items)),
	}

	subtotal := money.Sum()
	for _, item := range in.Items {
		oi := OrderItem{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Price:        money.Round(item.Price),
			Shade:        item.Shade,
			Quantity:     item.Quantity,
		}
		subtotal = money.Sum(subtotal, oi.LineTotal())
		o.Items = append(o.Items, oi)
	}

	o.Subtotal = subtotal
	o.Total = money.Sum(o.Subtotal, o.ShippingFee)

	log = log.With(
		logger.OrderID(o.ID),
		zap.String("subtotal", o.Subtotal.StringFixed(money.Scale)),
		zap.String("total", o.Total.StringFixed(money.Scale)),
	)

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		log.Error("failed to create order", zap.Error(err))
		return nil, apperror.Storage("failed to create order", err)
	}

	log.Info("order created")
	return o, nil
}

func validateCreateInput(in CreateOrderInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return ErrMissingOwner
	}
	if len(in.Items) == 0 {
		return ErrNoItems
	}
	for _, item := range in.Items {
		if item.ProductID == "" || strings.TrimSpace(item.ProductName) == "" {
			return ErrMissingProduct
		}
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if item.Price.IsNegative() {
			return ErrInvalidPrice
		}
	}
	if in.ShippingFee.IsNegative() {
		return ErrInvalidShippingFee
	}
	if !in.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	a := in.ShippingAddress
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Phone) == "" ||
		strings.TrimSpace(a.AddressLine) == "" || strings.TrimSpace(a.City) == "" {
		return ErrIncompleteAddress
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, apperror.Wrap(apperror.KindNotFound, "order not found", err)
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load order", logger.OrderID(id), zap.Error(err))
		return nil, apperror.Storage("failed to load order", err)
	}
	return o, nil
}

// GetOrderForUser loads an order the caller owns. Admins can read any order.
func (s *service) GetOrderForUser(ctx context.Context, id, userID string, isAdmin bool) (*Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !isAdmin && o.UserID != userID {
		return nil, apperror.Authorization("cannot access others' orders")
	}

	return o, nil
}

// SetStatus is the only way order status changes. It validates the move
// against the state machine, applies it as a compare-and-set on the status
// it observed, then hands the committed event to the notifier.
func (s *service) SetStatus(ctx context.Context, in SetStatusInput) (*Transition, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "SetStatus"),
		logger.OrderID(in.OrderID),
		zap.String("to", string(in.Status)),
		zap.String("actor", in.Actor),
	)

	o, err := s.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	if in.Expected != nil && o.Status != *in.Expected {
		log.Warn("status precondition failed",
			zap.String("expected", string(*in.Expected)),
			zap.String("actual", string(o.Status)),
		)
		return nil, apperror.Conflict(fmt.Sprintf("order is %s, expected %s", o.Status, *in.Expected))
	}

	if err := validateTransition(o.Status, in.Status); err != nil {
		log.Warn("rejected status transition", zap.String("from", string(o.Status)), zap.Error(err))
		return nil, err
	}

	ev, err := s.repo.CompareAndSetStatus(ctx, StatusChange{
		OrderID:  o.ID,
		From:     o.Status,
		To:       in.Status,
		Actor:    in.Actor,
		WithinTx: in.WithinTx,
	})
	if errors.Is(err, ErrStatusChanged) {
		log.Warn("lost status compare-and-set", zap.String("from", string(o.Status)))
		return nil, apperror.Conflict("order status changed concurrently")
	}
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		log.Error("failed to update order status", zap.Error(err))
		return nil, apperror.Storage("failed to update order status", err)
	}

	o.Status = in.Status
	tr := &Transition{Order: o, Event: *ev}

	log.Info("order status changed",
		zap.String("from", string(ev.From)),
		zap.Int64("event_id", ev.ID),
	)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, *ev); err != nil {
			log.Warn("failed to dispatch status notification", zap.Error(err))
			tr.Warning = NotificationWarning
		}
	}

	return tr, nil
}
