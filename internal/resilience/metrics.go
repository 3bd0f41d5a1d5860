package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors. Every series carries the target label, so
// market-price and submission-forward are charted apart.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pricing",
		Name:      "breaker_state",
		Help:      "Current breaker state per target: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Name:      "breaker_transition_total",
		Help:      "Breaker state transitions per target.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Name:      "breaker_open_total",
		Help:      "Times a target's breaker opened.",
	}, []string{"target"})
	BreakerRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Name:      "breaker_rejected_total",
		Help:      "Calls refused without reaching the target, by breaker state.",
	}, []string{"target", "state"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, BreakerRejectedTotal)
}
