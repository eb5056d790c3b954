package clients

import (
	"context"
	"hash/fnv"

	"github.com/vitwit/agentpay/types"
)

// SimulatedBackend derives a synthetic outcome from the payment id: the
// 64-bit FNV-1a hash modulo 10 fails one id in ten (~90% success). The
// outcome is stable per id, so a payment that fails once keeps failing —
// useful for exercising the retry path end to end.
type SimulatedBackend struct{}

func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{}
}

func (b *SimulatedBackend) Execute(ctx context.Context, payment *types.PaymentRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	h := fnv.New64a()
	h.Write([]byte(payment.ID))
	return h.Sum64()%10 != 0, nil
}

func (b *SimulatedBackend) Close() {}
