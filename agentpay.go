// Package agentpay routes payment requests across competing payment-service
// providers on multiple blockchain networks, executes them with bounded
// automatic retry, and continuously tunes routing from rolling cost and
// reliability statistics.
//
// The package is the boundary layer: it wires the provider registry, the
// cost optimizer and the payment processor into one feedback loop, enforces
// the caller allow-list on mutating operations and runs the periodic
// re-processing scheduler.
package agentpay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vitwit/agentpay/auth"
	"github.com/vitwit/agentpay/clients"
	"github.com/vitwit/agentpay/logger"
	"github.com/vitwit/agentpay/metrics"
	"github.com/vitwit/agentpay/optimizer"
	"github.com/vitwit/agentpay/processor"
	"github.com/vitwit/agentpay/registry"
	"github.com/vitwit/agentpay/types"
)

// Version information.
const Version = "1.0.0"

// Config carries construction-time configuration for the routing core.
type Config struct {
	// Settings seeds the optimizer; nil uses types.DefaultSettings.
	Settings *types.OptimizationSettings

	// Backend executes payment attempts; nil uses the simulated backend.
	Backend clients.ExecutionBackend

	// ProcessInterval is the cadence of the pending-payment scheduler;
	// zero means 60 seconds.
	ProcessInterval time.Duration

	// AuthorizedCallers seeds the allow-list. Anonymous callers are
	// always permitted regardless.
	AuthorizedCallers []string
}

// AgentPay is the facade over the routing core. Construct with New and
// inject it where operations are invoked; there is no package-level
// singleton.
type AgentPay struct {
	registry  *registry.Registry
	optimizer *optimizer.Optimizer
	processor *processor.Processor
	allowList *auth.AllowList
	backend   clients.ExecutionBackend

	log      logger.Logger
	metrics  metrics.Recorder
	validate *validator.Validate
	interval time.Duration
	now      func() time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an AgentPay instance from the given configuration.
func New(cfg *Config, opts ...Option) *AgentPay {
	if cfg == nil {
		cfg = &Config{}
	}

	settings := types.DefaultSettings()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}

	backend := cfg.Backend
	if backend == nil {
		backend = clients.NewSimulatedBackend()
	}

	interval := cfg.ProcessInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	a := &AgentPay{
		allowList: auth.NewAllowList(cfg.AuthorizedCallers...),
		backend:   backend,
		log:       logger.NoopLogger{},
		metrics:   metrics.NoopRecorder{},
		validate:  validator.New(),
		interval:  interval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.registry = registry.New(a.log)
	a.optimizer = optimizer.New(settings, a.log)
	a.processor = processor.New(backend, a.log)
	a.optimizer.SetClock(a.now)
	a.processor.SetClock(a.now)
	return a
}

// NewWithDefaults creates an AgentPay instance with stock settings and the
// simulated execution backend.
func NewWithDefaults() *AgentPay {
	return New(nil)
}

// authorize gates mutating operations on the allow-list.
func (a *AgentPay) authorize(caller string) error {
	if !a.allowList.IsAuthorized(caller) {
		return types.NewError(types.ErrUnauthorized, "caller %s is not authorized", caller)
	}
	return nil
}

// --- Provider registry operations ---

// RegisterProvider adds a provider to the registry.
func (a *AgentPay) RegisterProvider(caller string, provider types.Provider) (string, error) {
	if err := a.authorize(caller); err != nil {
		return "", err
	}
	if err := a.validate.Struct(provider); err != nil {
		return "", types.NewError(types.ErrInvalidArgument, "invalid provider: %v", err)
	}
	if err := a.registry.Register(provider); err != nil {
		return "", err
	}
	return provider.ID, nil
}

// GetProvider looks a provider up by id.
func (a *AgentPay) GetProvider(id string) (types.Provider, bool) {
	return a.registry.Get(id)
}

// ListProviders returns all known providers ordered by id.
func (a *AgentPay) ListProviders() []types.Provider {
	return a.registry.List()
}

// DeactivateProvider marks a provider inactive. Deactivation is terminal.
func (a *AgentPay) DeactivateProvider(caller, providerID string) error {
	if err := a.authorize(caller); err != nil {
		return err
	}
	return a.registry.Deactivate(providerID)
}

// --- Payment operations ---

// SubmitPayment stores a payment as pending and returns its id. A blank id
// gets a generated one.
func (a *AgentPay) SubmitPayment(caller string, payment types.PaymentRequest) (string, error) {
	if err := a.authorize(caller); err != nil {
		return "", err
	}
	if err := a.validate.Struct(payment); err != nil {
		return "", types.NewError(types.ErrInvalidArgument, "invalid payment: %v", err)
	}

	id, err := a.processor.Submit(payment)
	if err != nil {
		return "", err
	}
	a.metrics.IncCounter(metrics.EventPaymentSubmitted, map[string]string{"chain": payment.Chain})
	return id, nil
}

// ProcessPayment runs one execution attempt for a pending payment. A
// recoverable failure is absorbed (the payment returns to pending with its
// retry counter bumped); only NOT_FOUND and RETRY_EXHAUSTED surface as
// errors.
func (a *AgentPay) ProcessPayment(ctx context.Context, caller, paymentID string) error {
	if err := a.authorize(caller); err != nil {
		return err
	}

	chain := ""
	if payment, ok := a.processor.Get(paymentID); ok {
		chain = payment.Chain
	}

	start := a.now()
	status, err := a.processor.Process(ctx, paymentID)
	labels := map[string]string{"chain": chain}
	a.metrics.ObserveLatency("process_payment", time.Since(start), labels)

	switch status {
	case types.StatusCompleted:
		a.metrics.IncCounter(metrics.EventPaymentCompleted, labels)
	case types.StatusPending:
		a.metrics.IncCounter(metrics.EventPaymentRetried, labels)
	case types.StatusFailed:
		a.metrics.IncCounter(metrics.EventPaymentFailed, labels)
	}
	return err
}

// CancelPayment cancels a pending payment. Payments in processing are never
// cancellable.
func (a *AgentPay) CancelPayment(caller, paymentID string) error {
	if err := a.authorize(caller); err != nil {
		return err
	}
	if err := a.processor.Cancel(paymentID); err != nil {
		return err
	}
	a.metrics.IncCounter(metrics.EventPaymentCancelled, map[string]string{})
	return nil
}

// GetPaymentStatus looks a payment's status up across the pending set and
// the archive.
func (a *AgentPay) GetPaymentStatus(paymentID string) (types.PaymentStatus, bool) {
	return a.processor.Status(paymentID)
}

// ListPendingPayments snapshots all currently pending payments.
func (a *AgentPay) ListPendingPayments() []types.PaymentRequest {
	return a.processor.ListPending()
}

// --- Routing and statistics operations ---

// OptimizeRoute picks the best provider for a (chain, amount) pair per the
// optimizer's scoring, or NO_ROUTE when no provider qualifies.
func (a *AgentPay) OptimizeRoute(chain string, amount decimal.Decimal) (string, error) {
	if chain == "" || !amount.IsPositive() {
		return "", types.NewError(types.ErrInvalidArgument,
			"route needs a chain and a positive amount")
	}

	providerID, ok := a.optimizer.SelectRoute(a.registry, chain, amount)
	if !ok {
		a.metrics.IncCounter(metrics.EventRouteMissed, map[string]string{"chain": chain})
		return "", types.NewError(types.ErrNoRoute, "no provider qualifies for chain %s", chain)
	}
	a.metrics.IncCounter(metrics.EventRouteSelected, map[string]string{"chain": chain})
	return providerID, nil
}

// SelectBestProvider consults the registry's own composite scoring directly,
// bypassing the optimizer's settings thresholds.
func (a *AgentPay) SelectBestProvider(chain string, maxCost uint64) (types.Provider, bool) {
	return a.registry.SelectBest(chain, maxCost)
}

// GetRebalancingSuggestions advises moving preferred traffic off chains
// whose tracked success rate fell below the reliability threshold.
func (a *AgentPay) GetRebalancingSuggestions() []types.RebalancingSuggestion {
	return a.optimizer.SuggestRebalancing()
}

// RecordUsage reports an attempt outcome. It feeds the optimizer's usage
// history and chain statistics, and the provider's performance history in
// the registry, closing the routing feedback loop. Outcomes must be reported
// only after the attempt resolved, never speculatively.
func (a *AgentPay) RecordUsage(caller, chain, providerID string, cost uint64, success bool, responseTime float64) error {
	if err := a.authorize(caller); err != nil {
		return err
	}

	a.optimizer.RecordUsage(chain, providerID, cost, success, responseTime)
	if err := a.registry.RecordPerformance(providerID, responseTime); err != nil {
		// Usage for unknown providers still counts toward chain stats.
		a.log.Warn("usage for unknown provider", map[string]any{
			"provider": providerID,
			"chain":    chain,
		})
	}
	return nil
}

// GetUsageMetrics aggregates usage over the trailing window.
func (a *AgentPay) GetUsageMetrics(window time.Duration) types.UsageMetrics {
	return a.optimizer.Metrics(window)
}

// UpdateSettings replaces the optimization settings. Values are validated
// here at the boundary and rejected when out of range; the optimizer itself
// accepts whatever it is handed.
func (a *AgentPay) UpdateSettings(caller string, settings types.OptimizationSettings) error {
	if err := a.authorize(caller); err != nil {
		return err
	}
	if err := a.validate.Struct(settings); err != nil {
		return types.NewError(types.ErrInvalidArgument, "invalid settings: %v", err)
	}
	a.optimizer.UpdateSettings(settings)
	a.log.Info("settings updated", map[string]any{
		"maxCost":   settings.MaxCostPerTransaction,
		"threshold": settings.ReliabilityThreshold,
	})
	return nil
}

// GetSettings returns a copy of the active optimization settings.
func (a *AgentPay) GetSettings() types.OptimizationSettings {
	return a.optimizer.Settings()
}

// --- Authorization operations ---

// AddAuthorizedCaller admits an identity to the allow-list.
func (a *AgentPay) AddAuthorizedCaller(caller, identity string) error {
	if err := a.authorize(caller); err != nil {
		return err
	}
	a.allowList.Add(identity)
	return nil
}

// RemoveAuthorizedCaller evicts an identity from the allow-list.
func (a *AgentPay) RemoveAuthorizedCaller(caller, identity string) error {
	if err := a.authorize(caller); err != nil {
		return err
	}
	a.allowList.Remove(identity)
	return nil
}

// --- Lifecycle ---

// HealthCheck reports liveness with the current time.
func (a *AgentPay) HealthCheck() string {
	return fmt.Sprintf("agentpay %s is healthy. Timestamp: %s",
		Version, a.now().UTC().Format(time.RFC3339))
}

// Start launches the pending-payment scheduler: every ProcessInterval it
// re-invokes ProcessPayment for each currently pending payment. Overlapping
// work on the same payment id is serialized by the processor. Start is
// idempotent while running.
func (a *AgentPay) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.runScheduler(runCtx, a.done)
	a.log.Info("scheduler started", map[string]any{"interval": a.interval.String()})
}

func (a *AgentPay) runScheduler(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.processPendingOnce(ctx)
		}
	}
}

// processPendingOnce re-processes every payment that is still pending.
// Payments mid-flight (processing) are skipped; their in-flight status means
// another invocation owns them.
func (a *AgentPay) processPendingOnce(ctx context.Context) {
	pending := a.processor.ListPending()
	a.metrics.SetGauge("pending_payments", float64(len(pending)), map[string]string{})

	for _, payment := range pending {
		if payment.Status != types.StatusPending {
			continue
		}
		if err := a.ProcessPayment(ctx, "", payment.ID); err != nil {
			a.log.Debug("scheduled processing outcome", map[string]any{
				"payment": payment.ID,
				"error":   err.Error(),
			})
		}
	}
}

// Close stops the scheduler and releases the execution backend.
func (a *AgentPay) Close() {
	a.runMu.Lock()
	if a.cancel != nil {
		a.cancel()
		<-a.done
		a.cancel = nil
		a.done = nil
	}
	a.runMu.Unlock()

	a.backend.Close()
}
