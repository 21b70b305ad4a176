// Package events provides an in-process observer bus for order
// lifecycle notifications.
//
// Callers that used to reach into a shared cache-invalidation global
// instead subscribe here; the reconciler publishes a change event per
// order whose status it rewrote.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total events published by type.",
	}, []string{"event_type"})

	subscriberPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "events",
		Name:      "subscriber_panics_total",
		Help:      "Total panics recovered from event subscribers.",
	})
)

func init() {
	prometheus.MustRegister(eventsPublished, subscriberPanics)
}

// OrderStatusChanged is published when a reconciliation pass rewrites
// an order's status.
type OrderStatusChanged struct {
	OrderID   string    `json:"orderId"`
	UserID    string    `json:"userId"`
	NewStatus string    `json:"newStatus"`
	OldStatus string    `json:"oldStatus"`
	Source    string    `json:"source"` // "external" or "manual"
	At        time.Time `json:"at"`
}

// Subscriber receives order status change events. Delivery is
// synchronous with the publishing reconciliation worker; subscribers
// must not block.
type Subscriber func(OrderStatusChanged)

// Bus fans order events out to subscribers.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs []Subscriber
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a subscriber for all subsequent events.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// PublishStatusChange delivers the event to every subscriber. A
// panicking subscriber is recovered and logged; it never takes down
// the publishing worker.
func (b *Bus) PublishStatusChange(ev OrderStatusChanged) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	eventsPublished.WithLabelValues("order.status_changed").Inc()

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(fn, ev)
	}
}

func (b *Bus) deliver(fn Subscriber, ev OrderStatusChanged) {
	defer func() {
		if r := recover(); r != nil {
			subscriberPanics.Inc()
			if b.logger != nil {
				b.logger.Error("event subscriber panicked", "panic", r, "order_id", ev.OrderID)
			}
		}
	}()
	fn(ev)
}
