// Package clients provides execution backends: the pluggable component that
// actually attempts a payment on a chain and reports whether it went through.
// The routing core only sees the boolean outcome.
package clients

import (
	"context"

	"github.com/vitwit/agentpay/types"
)

// ExecutionBackend executes a single payment attempt. The boolean result is
// the attempt outcome; a non-nil error describes why no outcome could be
// obtained (both count as failed attempts for retry purposes).
type ExecutionBackend interface {
	Execute(ctx context.Context, payment *types.PaymentRequest) (bool, error)
	Close()
}

// BackendFunc adapts a plain function to ExecutionBackend.
type BackendFunc func(ctx context.Context, payment *types.PaymentRequest) (bool, error)

func (f BackendFunc) Execute(ctx context.Context, payment *types.PaymentRequest) (bool, error) {
	return f(ctx, payment)
}

func (BackendFunc) Close() {}
