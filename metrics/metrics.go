// Package metrics defines the instrumentation contract for the routing core.
// Counters cover payment outcomes and routing decisions; the histogram
// covers execution latency per chain.
package metrics

import "time"

// Event names recorded by the facade.
const (
	EventPaymentSubmitted = "payment_submitted"
	EventPaymentCompleted = "payment_completed"
	EventPaymentRetried   = "payment_retried"
	EventPaymentFailed    = "payment_failed"
	EventPaymentCancelled = "payment_cancelled"
	EventRouteSelected    = "route_selected"
	EventRouteMissed      = "route_missed"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}
