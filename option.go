package agentpay

import (
	"time"

	"github.com/vitwit/agentpay/logger"
	"github.com/vitwit/agentpay/metrics"
)

type Option func(*AgentPay)

// WithLogger injects a structured logger; the default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(a *AgentPay) {
		a.log = l
	}
}

// WithMetrics injects a metrics recorder; the default discards everything.
func WithMetrics(r metrics.Recorder) Option {
	return func(a *AgentPay) {
		a.metrics = r
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *AgentPay) {
		a.now = now
	}
}
