package verifier

import "github.com/prometheus/client_golang/prometheus"

var (
	verificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "verifier",
		Name:      "verifications_total",
		Help:      "Deposit verifications by classification.",
	}, []string{"classification"})

	repairsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boostpanel",
		Subsystem: "verifier",
		Name:      "repairs_total",
		Help:      "Manual deposit repairs applied.",
	})
)

func init() {
	prometheus.MustRegister(verificationsTotal, repairsTotal)
}
