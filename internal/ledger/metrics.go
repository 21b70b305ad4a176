package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	depositsApproved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "ledger",
		Name:      "deposits_approved_total",
		Help:      "Total deposit transactions approved.",
	})

	refundsCredited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "ledger",
		Name:      "refunds_credited_total",
		Help:      "Total refund credits applied to balances.",
	})
)

func init() {
	prometheus.MustRegister(depositsApproved, refundsCredited)
}
