// Package types defines the shared data model for the agentpay routing core:
// providers, payment requests, optimization settings and the structs exchanged
// with callers.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a payment request.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusCancelled  PaymentStatus = "cancelled"
)

// Terminal reports whether the status can never transition again.
func (s PaymentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s PaymentStatus) String() string {
	return string(s)
}

// Provider describes an external payment-service endpoint capable of
// executing payments on one or more chains. Providers are never deleted;
// deactivation is their terminal state.
type Provider struct {
	ID               string    `json:"id" validate:"required"`
	Name             string    `json:"name" validate:"required"`
	APIEndpoint      string    `json:"apiEndpoint" validate:"required"`
	SupportedChains  []string  `json:"supportedChains" validate:"min=1,dive,required"`
	CostPerRequest   uint64    `json:"costPerRequest"`
	ReliabilityScore float64   `json:"reliabilityScore" validate:"gte=0,lte=1"`
	LastPing         time.Time `json:"lastPing"`
	Active           bool      `json:"active"`
}

// SupportsChain reports whether the provider can service the given chain.
func (p *Provider) SupportsChain(chain string) bool {
	for _, c := range p.SupportedChains {
		if c == chain {
			return true
		}
	}
	return false
}

// PaymentRequest is a single payment to be executed by a provider on a chain.
// The processor owns it exclusively once submitted.
type PaymentRequest struct {
	ID         string          `json:"id"`
	ProviderID string          `json:"providerId" validate:"required"`
	Chain      string          `json:"chain" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Recipient  string          `json:"recipient" validate:"required"`
	Metadata   string          `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	Status     PaymentStatus   `json:"status"`
}

// OptimizationSettings configures route selection and rebalancing.
type OptimizationSettings struct {
	MaxCostPerTransaction   uint64        `json:"maxCostPerTransaction"`
	PreferredChains         []string      `json:"preferredChains" validate:"min=1,dive,required"`
	ReliabilityThreshold    float64       `json:"reliabilityThreshold" validate:"gte=0,lte=1"`
	AutoOptimizationEnabled bool          `json:"autoOptimizationEnabled"`
	RebalanceFrequency      time.Duration `json:"rebalanceFrequency" validate:"gte=0"`
}

// DefaultSettings returns the stock optimization settings.
func DefaultSettings() OptimizationSettings {
	return OptimizationSettings{
		MaxCostPerTransaction:   1_000_000, // 0.01 USD in wei equivalent
		PreferredChains:         []string{ChainREI, ChainPolygon},
		ReliabilityThreshold:    0.95,
		AutoOptimizationEnabled: true,
		RebalanceFrequency:      time.Hour,
	}
}

// UsageMetrics aggregates recorded usage over a time window.
type UsageMetrics struct {
	TotalRequests       uint64  `json:"totalRequests"`
	SuccessfulPayments  uint64  `json:"successfulPayments"`
	FailedPayments      uint64  `json:"failedPayments"`
	TotalVolume         uint64  `json:"totalVolume"`
	AverageResponseTime float64 `json:"averageResponseTime"`

	// CostEfficiency is successful payments per million units of cost
	// volume, zero when the window holds no requests.
	CostEfficiency float64 `json:"costEfficiency"`
}

// ChainStats holds streaming per-chain aggregates. Means are folded in
// incrementally on every reported attempt, never recomputed from raw
// history.
type ChainStats struct {
	AverageCost float64   `json:"averageCost"`
	Volume      uint64    `json:"volume"`
	SuccessRate float64   `json:"successRate"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RebalancingSuggestion advises moving preferred traffic off a chain whose
// tracked success rate fell below the reliability threshold.
type RebalancingSuggestion struct {
	FromChain string `json:"fromChain"`
	ToChain   string `json:"toChain"`
	Reason    string `json:"reason"`

	// PotentialSavings is a unitless heuristic, not a dimensioned amount.
	PotentialSavings float64 `json:"potentialSavings"`
}
