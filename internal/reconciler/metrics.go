package reconciler

import "github.com/prometheus/client_golang/prometheus"

var (
	roundsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "reconciler",
		Name:      "rounds_total",
		Help:      "Total reconciliation rounds run.",
	})

	ordersChecked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "reconciler",
		Name:      "orders_checked_total",
		Help:      "Total orders polled against the provider.",
	})

	ordersUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "reconciler",
		Name:      "orders_updated_total",
		Help:      "Total order status transitions applied.",
	})

	checkErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "reconciler",
		Name:      "check_errors_total",
		Help:      "Total per-order check failures.",
	})

	roundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "boostpanel",
		Subsystem: "reconciler",
		Name:      "round_duration_seconds",
		Help:      "Wall time of a reconciliation round.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(roundsTotal, ordersChecked, ordersUpdated, checkErrors, roundDuration)
}
