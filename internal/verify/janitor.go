package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper removes expired records and reports how many it deleted.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepRecorder is an optional interface for recording sweep metrics.
type SweepRecorder interface {
	ObserveSweep(removed int64, err error)
}

// Janitor periodically sweeps expired codes. It is safe to call Stop more
// than once.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	metrics  SweepRecorder
	done     chan struct{}
	stopOnce sync.Once
}

// NewJanitor creates a Janitor that sweeps every interval.
func NewJanitor(sweeper Sweeper, interval time.Duration) *Janitor {
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// SetMetrics sets the optional metrics recorder.
func (j *Janitor) SetMetrics(m SweepRecorder) {
	j.metrics = m
}

// Start sweeps on a timer. It blocks until Stop is called or the context is
// cancelled.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(ctx)
		case <-ctx.Done():
			return
		case <-j.done:
			return
		}
	}
}

// Sweep runs one pass. Errors are logged, not returned.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	removed, err := j.sweeper.SweepExpired(ctx)
	if j.metrics != nil {
		j.metrics.ObserveSweep(removed, err)
	}
	if err != nil {
		slog.Error("failed to sweep expired codes", "error", err)
		return 0
	}
	if removed > 0 {
		slog.Info("swept expired codes", "count", removed)
	}
	return removed
}

// Stop signals the background goroutine to exit.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.done) })
}
