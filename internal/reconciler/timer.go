package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const defaultRoundTimeout = 2 * time.Minute

// Timer periodically runs reconciliation rounds.
type Timer struct {
	reconciler   *Reconciler
	interval     time.Duration
	roundTimeout time.Duration
	logger       *slog.Logger
	stop         chan struct{}
	running      atomic.Bool
	inFlight     atomic.Bool
}

// NewTimer creates a reconciliation timer.
func NewTimer(r *Reconciler, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Timer{
		reconciler:   r,
		interval:     interval,
		roundTimeout: defaultRoundTimeout,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// SetRoundTimeout overrides the per-round deadline.
func (t *Timer) SetRoundTimeout(d time.Duration) {
	if d > 0 {
		t.roundTimeout = d
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic reconciliation loop. Call in a goroutine.
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
			t.safeRun(ctx)
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

func (t *Timer) safeRun(ctx context.Context) {
	// Skip the tick if the previous round is still in flight.
	if !t.inFlight.CompareAndSwap(false, true) {
		t.logger.Warn("reconciliation round still running; skipping tick")
		return
	}
	defer t.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in reconciliation round", "panic", fmt.Sprint(r))
		}
	}()

	roundCtx, cancel := context.WithTimeout(ctx, t.roundTimeout)
	defer cancel()

	if _, err := t.reconciler.ReconcileAll(roundCtx); err != nil {
		t.logger.Warn("reconciliation round failed", "error", err)
	}
}
