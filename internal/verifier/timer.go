package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const sweepBatch = 200

// Timer periodically sweeps approved deposits through verification.
type Timer struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a verification sweep timer.
func NewTimer(service *Service, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Timer{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeSweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in verification sweep", "panic", fmt.Sprint(r))
		}
	}()

	summary, err := t.service.Sweep(ctx, sweepBatch)
	if err != nil {
		t.logger.Warn("verification sweep failed", "error", err)
		return
	}
	t.logger.Info("verification sweep finished",
		"verified", summary.Verified,
		"flagged", summary.Flagged,
		"memoized", summary.Memoized,
		"errors", summary.Errors)
}
