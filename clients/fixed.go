package clients

import (
	"context"
	"sync"

	"github.com/vitwit/agentpay/types"
)

// FixedBackend returns scripted outcomes, for tests and dry runs. Scripted
// outcomes are consumed in order; once exhausted every call returns the
// default outcome.
type FixedBackend struct {
	mu       sync.Mutex
	script   []bool
	fallback bool
	calls    int
}

// NewFixedBackend builds a backend whose unscripted calls all return outcome.
func NewFixedBackend(outcome bool) *FixedBackend {
	return &FixedBackend{fallback: outcome}
}

// Script queues outcomes to return before falling back to the default.
func (b *FixedBackend) Script(outcomes ...bool) *FixedBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = append(b.script, outcomes...)
	return b
}

func (b *FixedBackend) Execute(ctx context.Context, payment *types.PaymentRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.script) > 0 {
		out := b.script[0]
		b.script = b.script[1:]
		return out, nil
	}
	return b.fallback, nil
}

// Calls reports how many attempts the backend has seen.
func (b *FixedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *FixedBackend) Close() {}
