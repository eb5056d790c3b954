// Package optimizer tunes routing from rolling cost and reliability
// statistics: it keeps a bounded usage history, streaming per-chain stats,
// scores route candidates and suggests moving traffic off degrading chains.
package optimizer

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitwit/agentpay/logger"
	"github.com/vitwit/agentpay/types"
)

const (
	// usageHistoryCap bounds the global usage ring buffer (FIFO).
	usageHistoryCap = 1000

	// defaultChainSuccessRate stands in for chains with no recorded stats.
	defaultChainSuccessRate = 0.5

	rebalanceReason = "Low success rate"
)

// ProviderSource supplies route candidates. *registry.Registry satisfies it.
type ProviderSource interface {
	List() []types.Provider
}

// UsageRecord is one reported payment attempt.
type UsageRecord struct {
	Timestamp    time.Time
	Chain        string
	ProviderID   string
	Cost         uint64
	Success      bool
	ResponseTime float64
}

// Optimizer is safe for concurrent use; one lock covers each full logical
// operation.
type Optimizer struct {
	mu       sync.RWMutex
	settings types.OptimizationSettings
	usage    []UsageRecord
	chains   map[string]*types.ChainStats
	now      func() time.Time
	log      logger.Logger
}

func New(settings types.OptimizationSettings, log logger.Logger) *Optimizer {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Optimizer{
		settings: settings,
		chains:   make(map[string]*types.ChainStats),
		now:      time.Now,
		log:      log,
	}
}

// SetClock overrides the time source. Intended for tests.
func (o *Optimizer) SetClock(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

// SelectRoute picks the provider id with the lowest badness score for the
// chain, or false when no provider passes the settings thresholds.
// Candidates are compared in id order, so equal scores resolve to the lower
// id.
func (o *Optimizer) SelectRoute(source ProviderSource, chain string, amount decimal.Decimal) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var candidates []types.Provider
	for _, p := range source.List() {
		if p.Active && p.SupportsChain(chain) &&
			p.CostPerRequest <= o.settings.MaxCostPerTransaction &&
			p.ReliabilityScore >= o.settings.ReliabilityThreshold {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	amt, _ := amount.Float64()
	bestID := candidates[0].ID
	bestScore := o.score(&candidates[0], chain, amt)
	for i := range candidates[1:] {
		p := &candidates[i+1]
		if s := o.score(p, chain, amt); s < bestScore {
			bestID, bestScore = p.ID, s
		}
	}

	o.log.Debug("route selected", map[string]any{
		"chain":    chain,
		"provider": bestID,
		"score":    bestScore,
	})
	return bestID, true
}

// score is the route badness of a provider for a chain and amount:
// 0.4*(cost/amount) + 0.3*(1-reliability) + 0.3*(1-chainSuccessRate).
// Lower is better; all three terms measure badness.
func (o *Optimizer) score(p *types.Provider, chain string, amount float64) float64 {
	costScore := float64(p.CostPerRequest) / amount
	reliabilityScore := 1.0 - p.ReliabilityScore

	historicalScore := defaultChainSuccessRate
	if cs, ok := o.chains[chain]; ok {
		historicalScore = 1.0 - cs.SuccessRate
	}

	return 0.4*costScore + 0.3*reliabilityScore + 0.3*historicalScore
}

// RecordUsage appends a usage record to the capped ring buffer and folds the
// attempt into the chain's streaming stats.
func (o *Optimizer) RecordUsage(chain, providerID string, cost uint64, success bool, responseTime float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	o.usage = append(o.usage, UsageRecord{
		Timestamp:    now,
		Chain:        chain,
		ProviderID:   providerID,
		Cost:         cost,
		Success:      success,
		ResponseTime: responseTime,
	})
	if len(o.usage) > usageHistoryCap {
		o.usage = o.usage[1:]
	}

	cs, ok := o.chains[chain]
	if !ok {
		cs = &types.ChainStats{}
		o.chains[chain] = cs
	}

	cs.Volume++
	n := float64(cs.Volume)
	cs.AverageCost += (float64(cost) - cs.AverageCost) / n
	successValue := 0.0
	if success {
		successValue = 1.0
	}
	cs.SuccessRate += (successValue - cs.SuccessRate) / n
	cs.LastUpdated = now
}

// Metrics aggregates usage records whose timestamp falls within
// [now-window, now]. Windows longer than the recorded history simply cover
// everything; time.Time arithmetic cannot wrap.
func (o *Optimizer) Metrics(window time.Duration) types.UsageMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := o.now().Add(-window)

	var m types.UsageMetrics
	var responseTotal float64
	for i := range o.usage {
		r := &o.usage[i]
		if r.Timestamp.Before(cutoff) {
			continue
		}
		m.TotalRequests++
		if r.Success {
			m.SuccessfulPayments++
		} else {
			m.FailedPayments++
		}
		m.TotalVolume += r.Cost
		responseTotal += r.ResponseTime
	}

	if m.TotalRequests > 0 {
		m.AverageResponseTime = responseTotal / float64(m.TotalRequests)
	}
	if m.TotalRequests > 0 && m.TotalVolume > 0 {
		m.CostEfficiency = float64(m.SuccessfulPayments) / float64(m.TotalVolume) * 1_000_000
	}
	return m
}

// SuggestRebalancing emits one suggestion per preferred chain whose tracked
// success rate sits below the reliability threshold, naming the best
// performing other chain as the target.
func (o *Optimizer) SuggestRebalancing() []types.RebalancingSuggestion {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var suggestions []types.RebalancingSuggestion
	for _, chain := range o.settings.PreferredChains {
		cs, ok := o.chains[chain]
		if !ok || cs.SuccessRate >= o.settings.ReliabilityThreshold {
			continue
		}
		suggestions = append(suggestions, types.RebalancingSuggestion{
			FromChain:        chain,
			ToChain:          o.alternativeChain(chain),
			Reason:           rebalanceReason,
			PotentialSavings: o.potentialSavings(chain),
		})
	}
	return suggestions
}

// alternativeChain picks the tracked chain with the highest success rate
// other than the given one, falling back to Polygon when nothing else has
// stats. Chains are compared in name order, so ties resolve to the first
// name.
func (o *Optimizer) alternativeChain(exclude string) string {
	names := make([]string, 0, len(o.chains))
	for name := range o.chains {
		if name != exclude {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return types.ChainPolygon
	}
	sort.Strings(names)

	best := names[0]
	for _, name := range names[1:] {
		if o.chains[name].SuccessRate > o.chains[best].SuccessRate {
			best = name
		}
	}
	return best
}

// potentialSavings is the system's defined heuristic: the source chain's
// inefficiency (1-successRate)*meanCost multiplied by the best
// successRate/meanCost ratio across all tracked chains. The product is
// unitless, not a money amount.
func (o *Optimizer) potentialSavings(chain string) float64 {
	cs, ok := o.chains[chain]
	if !ok {
		return 0
	}

	inefficiency := (1.0 - cs.SuccessRate) * cs.AverageCost

	bestEfficiency := 0.0
	for _, other := range o.chains {
		if eff := other.SuccessRate * (1.0 / other.AverageCost); eff > bestEfficiency {
			bestEfficiency = eff
		}
	}
	return inefficiency * bestEfficiency
}

// UpdateSettings atomically replaces the active configuration. No validation
// happens at this layer; the boundary decides what values are admissible.
func (o *Optimizer) UpdateSettings(settings types.OptimizationSettings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	settings.PreferredChains = append([]string(nil), settings.PreferredChains...)
	o.settings = settings
}

// Settings returns a copy of the active configuration.
func (o *Optimizer) Settings() types.OptimizationSettings {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := o.settings
	s.PreferredChains = append([]string(nil), o.settings.PreferredChains...)
	return s
}

// ChainStats returns a copy of the streaming aggregates for a chain.
func (o *Optimizer) ChainStats(chain string) (types.ChainStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cs, ok := o.chains[chain]
	if !ok {
		return types.ChainStats{}, false
	}
	return *cs, true
}

// UsageLen reports how many usage records are currently retained.
func (o *Optimizer) UsageLen() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.usage)
}

// OldestUsage returns the oldest retained usage record, if any.
func (o *Optimizer) OldestUsage() (UsageRecord, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.usage) == 0 {
		return UsageRecord{}, false
	}
	return o.usage[0], true
}
