package notification

import (
	"context"
	"errors"
	"time"

	"duka-be/internal/logger"
	"duka-be/internal/order"

	"go.uber.org/zap"
)

const relayBatchSize = 100

// OutboxSource lists committed transitions whose email was never delivered.
type OutboxSource interface {
	ListUnnotifiedEvents(ctx context.Context, createdBefore time.Time, limit int) ([]order.StatusEvent, error)
}

// Relay re-queues undelivered status events. Events younger than grace are
// left alone since their first dispatch may still be in flight.
type Relay struct {
	source   OutboxSource
	dispatch order.Notifier
	grace    time.Duration
	now      func() time.Time
}

func NewRelay(source OutboxSource, dispatch order.Notifier, grace time.Duration) *Relay {
	return &Relay{
		source:   source,
		dispatch: dispatch,
		grace:    grace,
		now:      time.Now,
	}
}

// RelayOnce queues one batch and returns how many events were queued.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	log := logger.FromCtx(ctx).With(zap.String("component", "notification_relay"))

	events, err := r.source.ListUnnotifiedEvents(ctx, r.now().Add(-r.grace), relayBatchSize)
	if err != nil {
		log.Error("failed to list undelivered events", zap.Error(err))
		return 0, err
	}

	queued := 0
	for _, ev := range events {
		if err := r.dispatch.Notify(ctx, ev); err != nil {
			if errors.Is(err, ErrQueueFull) {
				log.Warn("notification queue full, relay paused", zap.Int("queued", queued))
				break
			}
			return queued, err
		}
		queued++
	}

	if queued > 0 {
		log.Info("re-queued undelivered notifications", zap.Int("count", queued))
	}
	return queued, nil
}

func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RelayOnce(ctx)
		}
	}
}
