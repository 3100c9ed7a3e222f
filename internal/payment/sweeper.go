package payment

import (
	"context"
	"time"

	"duka-be/internal/logger"
	"duka-be/internal/metrics"
	"duka-be/internal/order"

	"go.uber.org/zap"
)

const (
	sweepBatchSize = 100
	sweeperActor   = "sweeper"
	timeoutDesc    = "timed out waiting for gateway callback"
)

// Sweeper fails pending attempts whose callback never arrived and cancels
// their orders, so nothing waits in processing forever.
type Sweeper struct {
	orders  order.Service
	repo    Repository
	ttl     time.Duration
	metrics *metrics.Payments
	now     func() time.Time
}

func NewSweeper(orders order.Service, repo Repository, ttl time.Duration, m *metrics.Payments) *Sweeper {
	return &Sweeper{
		orders:  orders,
		repo:    repo,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
	}
}

// SweepOnce times out every attempt pending for longer than olderThan and
// returns the ones it finalized.
func (s *Sweeper) SweepOnce(ctx context.Context, olderThan time.Duration) ([]Attempt, error) {
	log := logger.FromCtx(ctx).With(zap.String("component", "sweeper"))
	cutoff := s.now().Add(-olderThan)

	stale, err := s.repo.ListStalePending(ctx, cutoff, sweepBatchSize)
	if err != nil {
		log.Error("failed to list stale payment attempts", zap.Error(err))
		return nil, err
	}

	var swept []Attempt
	for _, a := range stale {
		attemptLog := log.With(
			logger.OrderID(a.OrderID),
			logger.CheckoutRequestID(a.CheckoutRequestID),
			zap.Time("created_at", a.CreatedAt),
		)
		actx := logger.WithLogger(ctx, attemptLog)

		fin := Finalization{
			Outcome:    OutcomeFailed,
			ResultCode: -1,
			ResultDesc: timeoutDesc,
		}

		res, err := settle(actx, s.orders, s.repo, &a, fin, order.StatusCancelled, sweeperActor)
		if err != nil {
			// keep going; the next tick retries this attempt
			attemptLog.Error("failed to time out payment attempt", zap.Error(err))
			continue
		}
		if res == ResultDuplicate {
			continue
		}

		s.metrics.Inc(metrics.Swept)
		attemptLog.Info("payment attempt timed out", zap.String("result", string(res)))
		a.Outcome = OutcomeFailed
		swept = append(swept, a)
	}

	return swept, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.FromCtx(ctx).Info("payment sweeper started",
		zap.Duration("interval", interval),
		zap.Duration("ttl", s.ttl),
	)

	for {
		select {
		case <-ctx.Done():
			logger.FromCtx(ctx).Info("payment sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx, s.ttl); err != nil {
				logger.FromCtx(ctx).Warn("payment sweep failed", zap.Error(err))
			}
		}
	}
}
