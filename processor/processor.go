// Package processor owns the payment lifecycle: submission, execution with
// bounded retry and terminal archival. Execution itself is delegated to an
// injected backend; the processor only manages state transitions.
package processor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/agentpay/clients"
	"github.com/vitwit/agentpay/logger"
	"github.com/vitwit/agentpay/types"
)

// maxRetries bounds recoverable failures per payment. A payment that keeps
// failing goes terminal on attempt maxRetries+1.
const maxRetries = 3

// Processor is safe for concurrent use. State mutations happen under one
// lock; the backend call inside Process runs outside it, with a per-payment
// in-flight lock serializing overlapping Process calls for the same id.
type Processor struct {
	mu       sync.Mutex
	pending  map[string]*types.PaymentRequest
	archive  map[string]*types.PaymentRequest
	retries  map[string]int
	inflight map[string]*sync.Mutex

	backend clients.ExecutionBackend
	now     func() time.Time
	log     logger.Logger
}

func New(backend clients.ExecutionBackend, log logger.Logger) *Processor {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Processor{
		pending:  make(map[string]*types.PaymentRequest),
		archive:  make(map[string]*types.PaymentRequest),
		retries:  make(map[string]int),
		inflight: make(map[string]*sync.Mutex),
		backend:  backend,
		now:      time.Now,
		log:      log,
	}
}

// SetClock overrides the time source. Intended for tests.
func (p *Processor) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Submit stores a payment as pending. A blank id gets a generated one. The
// id must be unique across both the pending set and the archive.
func (p *Processor) Submit(payment types.PaymentRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}

	if _, dup := p.pending[payment.ID]; dup {
		return "", types.NewError(types.ErrDuplicateID, "payment %s already exists", payment.ID)
	}
	if _, dup := p.archive[payment.ID]; dup {
		return "", types.NewError(types.ErrDuplicateID, "payment %s already exists", payment.ID)
	}

	payment.CreatedAt = p.now()
	payment.Status = types.StatusPending
	p.pending[payment.ID] = &payment
	p.retries[payment.ID] = 0

	p.log.Info("payment submitted", map[string]any{
		"payment":  payment.ID,
		"chain":    payment.Chain,
		"provider": payment.ProviderID,
	})
	return payment.ID, nil
}

// Process runs one execution attempt for a pending payment and returns the
// resulting status. A recoverable failure reverts the payment to pending
// with its retry counter bumped and returns no error; only the terminal
// outcomes are errors (NOT_FOUND, RETRY_EXHAUSTED). Concurrent Process
// calls for the same id are serialized, never run in parallel.
func (p *Processor) Process(ctx context.Context, id string) (types.PaymentStatus, error) {
	idmu := p.paymentLock(id)
	idmu.Lock()
	defer idmu.Unlock()

	p.mu.Lock()
	payment, ok := p.pending[id]
	if !ok {
		delete(p.inflight, id)
		p.mu.Unlock()
		return "", types.NewError(types.ErrNotFound, "payment %s not found", id)
	}
	payment.Status = types.StatusProcessing
	attempt := *payment
	p.mu.Unlock()

	// Suspension point: the backend may block on the network. Cancel is
	// rejected while the payment sits in processing.
	success, err := p.backend.Execute(ctx, &attempt)
	if err != nil {
		p.log.Warn("execution backend error", map[string]any{
			"payment": id,
			"error":   err.Error(),
		})
		success = false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if success {
		payment.Status = types.StatusCompleted
		p.archivePayment(id, payment)
		p.log.Info("payment completed", map[string]any{"payment": id})
		return types.StatusCompleted, nil
	}
	return p.handleFailure(id, payment)
}

// handleFailure applies the retry policy. Caller holds p.mu.
func (p *Processor) handleFailure(id string, payment *types.PaymentRequest) (types.PaymentStatus, error) {
	if p.retries[id] < maxRetries {
		p.retries[id]++
		payment.Status = types.StatusPending
		p.log.Info("payment retry scheduled", map[string]any{
			"payment": id,
			"attempt": p.retries[id],
		})
		return types.StatusPending, nil
	}

	payment.Status = types.StatusFailed
	p.archivePayment(id, payment)
	p.log.Warn("payment failed", map[string]any{"payment": id, "retries": maxRetries})
	return types.StatusFailed, types.NewError(types.ErrRetryExhausted,
		"payment %s failed after %d retries", id, maxRetries)
}

// Cancel moves a pending payment to the archive as cancelled. Payments in
// processing are never cancellable.
func (p *Processor) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payment, ok := p.pending[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "payment %s not found", id)
	}
	if payment.Status == types.StatusProcessing {
		return types.NewError(types.ErrInvalidState,
			"payment %s is processing and cannot be cancelled", id)
	}

	payment.Status = types.StatusCancelled
	p.archivePayment(id, payment)
	p.log.Info("payment cancelled", map[string]any{"payment": id})
	return nil
}

// Status looks the payment up in the pending set, then the archive.
func (p *Processor) Status(id string) (types.PaymentStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if payment, ok := p.pending[id]; ok {
		return payment.Status, true
	}
	if payment, ok := p.archive[id]; ok {
		return payment.Status, true
	}
	return "", false
}

// Get returns a copy of the payment from either set.
func (p *Processor) Get(id string) (types.PaymentRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if payment, ok := p.pending[id]; ok {
		return *payment, true
	}
	if payment, ok := p.archive[id]; ok {
		return *payment, true
	}
	return types.PaymentRequest{}, false
}

// ListPending snapshots all currently pending payments, ordered by id.
func (p *Processor) ListPending() []types.PaymentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.PaymentRequest, 0, len(p.pending))
	for _, payment := range p.pending {
		out = append(out, *payment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// archivePayment moves a payment to the terminal archive. Caller holds p.mu.
func (p *Processor) archivePayment(id string, payment *types.PaymentRequest) {
	delete(p.pending, id)
	delete(p.retries, id)
	delete(p.inflight, id)
	p.archive[id] = payment
}

// paymentLock returns the per-id serialization lock, creating it on first
// use.
func (p *Processor) paymentLock(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	mu, ok := p.inflight[id]
	if !ok {
		mu = &sync.Mutex{}
		p.inflight[id] = mu
	}
	return mu
}
