// Package registry owns the inventory of payment-service providers and a
// bounded rolling performance history per provider, and scores providers for
// route candidacy.
package registry

import (
	"sort"
	"sync"

	"github.com/vitwit/agentpay/logger"
	"github.com/vitwit/agentpay/types"
)

const (
	// historyCap bounds each provider's response-time history (FIFO).
	historyCap = 100

	// reliabilityFloor is the fixed admission threshold for SelectBest.
	// It is deliberately not configurable at this layer.
	reliabilityFloor = 0.8

	// defaultPerformanceScore stands in for providers with no recorded
	// response times.
	defaultPerformanceScore = 0.5
)

// Registry is safe for concurrent use; one lock covers each full logical
// operation.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*types.Provider
	history   map[string][]float64
	log       logger.Logger
}

func New(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Registry{
		providers: make(map[string]*types.Provider),
		history:   make(map[string][]float64),
		log:       log,
	}
}

// Register stores a new provider and initializes its performance history.
func (r *Registry) Register(provider types.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[provider.ID]; exists {
		return types.NewError(types.ErrDuplicateID, "provider %s already registered", provider.ID)
	}

	p := provider
	p.SupportedChains = append([]string(nil), provider.SupportedChains...)
	r.providers[p.ID] = &p
	r.history[p.ID] = nil

	r.log.Info("provider registered", map[string]any{
		"provider": p.ID,
		"chains":   p.SupportedChains,
		"cost":     p.CostPerRequest,
	})
	return nil
}

// RecordPerformance appends a response-time observation to the provider's
// capped history, evicting the oldest entry past the cap.
func (r *Registry) RecordPerformance(providerID string, responseTime float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerID]; !exists {
		return types.NewError(types.ErrNotFound, "provider %s not found", providerID)
	}

	h := append(r.history[providerID], responseTime)
	if len(h) > historyCap {
		h = h[1:]
	}
	r.history[providerID] = h
	return nil
}

// Get returns a copy of the provider, if known.
func (r *Registry) Get(id string) (types.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return types.Provider{}, false
	}
	return copyProvider(p), true
}

// List returns copies of all providers, ordered by id.
func (r *Registry) List() []types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, copyProvider(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deactivate marks a provider inactive. There is no reactivation path;
// deactivation is terminal.
func (r *Registry) Deactivate(providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.providers[providerID]
	if !exists {
		return types.NewError(types.ErrNotFound, "provider %s not found", providerID)
	}
	p.Active = false

	r.log.Info("provider deactivated", map[string]any{"provider": providerID})
	return nil
}

// SelectBest returns the admitted provider with the minimum composite score
// for the chain. Candidates must be active, support the chain, cost at most
// maxCost and hold reliability of at least 0.8. Candidates are compared in
// id order, so equal scores resolve to the lower id.
//
// NOTE: every score term is higher-is-better, yet selection takes the
// minimum. This reproduces the upstream behavior, which is suspected to be
// an inversion defect; flipping the direction is a routing-visible change
// that needs a product decision first.
func (r *Registry) SelectBest(chain string, maxCost uint64) (types.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id, p := range r.providers {
		if p.Active && p.SupportsChain(chain) &&
			p.CostPerRequest <= maxCost && p.ReliabilityScore >= reliabilityFloor {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return types.Provider{}, false
	}
	sort.Strings(ids)

	bestID := ids[0]
	bestScore := r.score(r.providers[bestID])
	for _, id := range ids[1:] {
		if s := r.score(r.providers[id]); s < bestScore {
			bestID, bestScore = id, s
		}
	}
	return copyProvider(r.providers[bestID]), true
}

// score computes the composite desirability of a provider:
// 0.3*(1/(cost+1)) + 0.4*reliability + 0.3*(1/(meanResponseTime+1)),
// with 0.5 as the performance term when no history exists.
func (r *Registry) score(p *types.Provider) float64 {
	costScore := 1.0 / (float64(p.CostPerRequest) + 1.0)

	performanceScore := defaultPerformanceScore
	if h := r.history[p.ID]; len(h) > 0 {
		var sum float64
		for _, rt := range h {
			sum += rt
		}
		performanceScore = 1.0 / (sum/float64(len(h)) + 1.0)
	}

	return 0.3*costScore + 0.4*p.ReliabilityScore + 0.3*performanceScore
}

// MeanResponseTime averages the provider's recorded history; false when the
// provider is unknown or has no observations.
func (r *Registry) MeanResponseTime(providerID string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.history[providerID]
	if !ok || len(h) == 0 {
		return 0, false
	}
	var sum float64
	for _, rt := range h {
		sum += rt
	}
	return sum / float64(len(h)), true
}

func copyProvider(p *types.Provider) types.Provider {
	out := *p
	out.SupportedChains = append([]string(nil), p.SupportedChains...)
	return out
}
