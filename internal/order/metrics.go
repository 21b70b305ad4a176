package order

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "orders",
		Name:      "placed_total",
		Help:      "Total orders placed.",
	})

	refundsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "orders",
		Name:      "refunds_total",
		Help:      "Total refunds completed.",
	})
)

func init() {
	prometheus.MustRegister(ordersPlaced, refundsProcessed)
}
