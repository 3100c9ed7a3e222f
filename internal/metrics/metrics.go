// Package metrics keeps in-process payment counters for operators.
package metrics

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Counter only goes up. The zero value is ready to use.
type Counter struct {
	n atomic.Uint64
}

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(n uint64) { c.n.Add(n) }
func (c *Counter) Load() uint64 { return c.n.Load() }

// Timer measures one outbound call to a provider.
type Timer struct {
	start time.Time
}

func StartTimer() Timer {
	return Timer{start: time.Now()}
}

func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Latency is the elapsed time as a log field.
func (t Timer) Latency() zap.Field {
	return zap.Duration("latency", t.Elapsed())
}
