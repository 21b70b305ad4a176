// Package reconciler polls the fulfillment provider for order status
// and applies transitions to stored orders.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/boostlab/boostpanel/internal/events"
	"github.com/boostlab/boostpanel/internal/idgen"
	"github.com/boostlab/boostpanel/internal/order"
	"github.com/boostlab/boostpanel/internal/provider"
	"github.com/boostlab/boostpanel/internal/status"
)

const (
	defaultConcurrency    = 10
	defaultMinInterval    = 5 * time.Minute
	defaultCheckableBatch = 500
)

// StatusChecker queries the provider for an order's current status.
type StatusChecker interface {
	Status(ctx context.Context, externalID string) (*provider.StatusResult, error)
}

// CheckFailure identifies one order whose check failed and why.
type CheckFailure struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

// Summary reports one reconciliation round. Checked counts orders that
// passed the eligibility filter and were attempted; Updated and Errors
// partition the interesting outcomes, so Updated+Errors <= Checked.
// Failed carries one entry per errored order, Errors == len(Failed).
type Summary struct {
	Checked int            `json:"checked"`
	Updated int            `json:"updated"`
	Errors  int            `json:"errors"`
	Failed  []CheckFailure `json:"failed,omitempty"`
}

// Reconciler drives batch status checks with a bounded worker pool.
type Reconciler struct {
	store       order.Store
	checker     StatusChecker
	bus         *events.Bus
	logger      *slog.Logger
	concurrency int
	minInterval time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithConcurrency bounds the number of in-flight provider calls.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMinCheckInterval sets the per-order re-check rate limit.
func WithMinCheckInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.minInterval = d
		}
	}
}

// New creates a reconciler.
func New(store order.Store, checker StatusChecker, bus *events.Bus, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		checker:     checker,
		bus:         bus,
		logger:      logger,
		concurrency: defaultConcurrency,
		minInterval: defaultMinInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReconcileAll loads the non-terminal orders and reconciles them.
func (r *Reconciler) ReconcileAll(ctx context.Context) (Summary, error) {
	orders, err := r.store.ListCheckable(ctx, defaultCheckableBatch)
	if err != nil {
		return Summary{}, err
	}
	return r.Reconcile(ctx, orders), nil
}

// Reconcile runs one round over the given orders. Each order is
// checked independently; one failure never aborts the round.
func (r *Reconciler) Reconcile(ctx context.Context, orders []*order.Order) Summary {
	start := time.Now()
	now := start

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, r.concurrency)

	for _, o := range orders {
		if !order.ShouldCheck(o, r.minInterval, now) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(o *order.Order) {
			defer wg.Done()
			defer func() { <-sem }()

			updated, err := r.checkOrder(ctx, o)

			mu.Lock()
			summary.Checked++
			if updated {
				summary.Updated++
			}
			if err != nil {
				summary.Errors++
				summary.Failed = append(summary.Failed, CheckFailure{OrderID: o.ID, Error: err.Error()})
			}
			mu.Unlock()
		}(o)
	}
	wg.Wait()

	roundsTotal.Inc()
	ordersChecked.Add(float64(summary.Checked))
	ordersUpdated.Add(float64(summary.Updated))
	checkErrors.Add(float64(summary.Errors))
	roundDuration.Observe(time.Since(start).Seconds())

	r.logger.Info("reconciliation round finished",
		"checked", summary.Checked,
		"updated", summary.Updated,
		"errors", summary.Errors,
		"duration", time.Since(start))
	return summary
}

// checkOrder polls the provider for one order and applies the
// transition. The check stamp is written regardless of outcome so a
// failing order does not get hammered every round.
func (r *Reconciler) checkOrder(ctx context.Context, o *order.Order) (bool, error) {
	if err := r.store.StampStatusCheck(ctx, o.ID, time.Now()); err != nil {
		r.logger.Warn("failed to stamp status check", "order_id", o.ID, "error", err)
	}

	res, err := r.checker.Status(ctx, o.ExternalID)
	if err != nil {
		if errors.Is(err, provider.ErrOrderNotFound) {
			r.logger.Warn("provider does not know order",
				"order_id", o.ID,
				"external_id", o.ExternalID)
		} else {
			r.logger.Warn("provider status check failed",
				"order_id", o.ID,
				"external_id", o.ExternalID,
				"error", err)
		}
		return false, err
	}

	canonical := status.Map(res.Status)
	if canonical == status.None {
		// Unknown vocabulary leaves the stored status untouched.
		r.logger.Warn("unrecognized provider status",
			"order_id", o.ID,
			"raw_status", res.Status)
		return false, nil
	}
	if canonical == o.Status {
		return false, nil
	}
	if status.IsTerminalOrder(o.Status) {
		// Eligibility should have excluded these; never regress a
		// terminal order on a provider's say-so.
		return false, nil
	}

	// History before status: the audit row must exist even if the
	// status write below is lost. A history failure is logged and the
	// transition still applied; the next round would re-derive it.
	if err := r.store.InsertStatusHistory(ctx, &order.StatusHistory{
		ID:             idgen.WithPrefix("hist_"),
		OrderID:        o.ID,
		NewStatus:      canonical,
		PreviousStatus: o.Status,
		Source:         order.SourceExternal,
		Raw:            res.Raw,
		CreatedAt:      time.Now(),
	}); err != nil {
		r.logger.Error("failed to record status history",
			"order_id", o.ID,
			"error", err)
	}

	var completedAt *time.Time
	if canonical == status.Completed {
		now := time.Now()
		completedAt = &now
	}
	if _, err := r.store.UpdateOrderStatus(ctx, o.ID, canonical, completedAt); err != nil {
		return false, err
	}

	r.logger.Info("order status updated",
		"order_id", o.ID,
		"old_status", o.Status,
		"new_status", canonical)

	r.bus.PublishStatusChange(events.OrderStatusChanged{
		OrderID:   o.ID,
		UserID:    o.UserID,
		NewStatus: canonical,
		OldStatus: o.Status,
		Source:    order.SourceExternal,
		At:        time.Now(),
	})
	return true, nil
}
