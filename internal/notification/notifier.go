package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"duka-be/internal/logger"
	"duka-be/internal/order"

	"go.uber.org/zap"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

// EmailLookup resolves an order owner's address. user.Repository satisfies it.
type EmailLookup interface {
	FindEmailByID(ctx context.Context, userID string) (string, error)
}

// EventMarker records that an outbox event was delivered. order.Repository
// satisfies it.
type EventMarker interface {
	MarkEventNotified(ctx context.Context, eventID int64) error
}

// Notifier emails the owner of an order about one status change.
type Notifier struct {
	emails    EmailLookup
	sender    Sender
	templates *Templates
	marker    EventMarker
}

func NewNotifier(emails EmailLookup, sender Sender, templates *Templates, marker EventMarker) *Notifier {
	return &Notifier{
		emails:    emails,
		sender:    sender,
		templates: templates,
		marker:    marker,
	}
}

func (n *Notifier) NotifyStatusChange(ctx context.Context, ev order.StatusEvent) error {
	log := logger.FromCtx(ctx).With(
		logger.OrderID(ev.OrderID),
		zap.Int64("event_id", ev.ID),
		logger.Status(string(ev.To)),
	)

	to, err := n.emails.FindEmailByID(ctx, ev.UserID)
	if err != nil {
		log.Warn("failed to resolve owner email", zap.String("user_id", ev.UserID), zap.Error(err))
		return fmt.Errorf("resolve owner email: %w", err)
	}

	msg, err := n.templates.Render(ev)
	if err != nil {
		log.Error("failed to render notification", zap.Error(err))
		return err
	}

	if err := n.sender.Send(ctx, Email{To: to, Subject: msg.Subject, Text: msg.Body}); err != nil {
		log.Warn("failed to send notification", zap.Error(err))
		return err
	}

	if ev.ID != 0 && n.marker != nil {
		if err := n.marker.MarkEventNotified(ctx, ev.ID); err != nil {
			// the relay may send this one again
			log.Warn("failed to mark event notified", zap.Error(err))
		}
	}

	log.Info("status notification sent")
	return nil
}

type deliverer interface {
	NotifyStatusChange(ctx context.Context, ev order.StatusEvent) error
}

type job struct {
	ctx context.Context
	ev  order.StatusEvent
}

// Dispatcher hands status events to a fixed pool of workers so the caller
// never waits on the email provider. It implements order.Notifier.
type Dispatcher struct {
	target  deliverer
	jobs    chan job
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(target deliverer, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	d := &Dispatcher{
		target:  target,
		jobs:    make(chan job, queueSize),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify queues ev without blocking. It fails only when the queue is full or
// the dispatcher is shutting down.
func (d *Dispatcher) Notify(ctx context.Context, ev order.StatusEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), ev: ev}:
		return nil
	default:
		logger.FromCtx(ctx).Warn("notification queue full, dropping event",
			logger.OrderID(ev.OrderID),
			zap.Int64("event_id", ev.ID),
		)
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx := j.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.FromCtx(ctx).Error("notification worker panic", zap.Any("panic", r))
		}
	}()

	// errors are already logged with context by the target
	_ = d.target.NotifyStatusChange(ctx, j.ev)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}
