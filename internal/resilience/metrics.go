package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BreakerState exposes the breaker state per target (0 closed, 1 open, 2 half-open).
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "breaker_state",
		Help: "Current breaker state: 0=closed,1=open,2=half-open",
	}, []string{"target"})
	// BreakerTransitions counts state transitions.
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_transition_total",
		Help: "Count of breaker state transitions",
	}, []string{"target", "from", "to"})
	// BreakerOpenedTotal counts transitions into the open state.
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_open_total",
		Help: "Number of times a breaker transitioned into open state",
	}, []string{"target"})
	// RetryAttempts counts outbound attempts by target and outcome.
	RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_client_attempts_total",
		Help: "Outbound HTTP attempts made through the resilient client",
	}, []string{"target", "result"})
)

// RegisterMetrics registers the breaker and retry collectors. Already
// registered collectors are tolerated so tests can call it repeatedly.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal, RetryAttempts} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
