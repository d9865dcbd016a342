package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NeutralHealthScore is substituted when a provider has no health signal
const NeutralHealthScore = 50.0

// ProviderHealth is the externally computed health signal for one provider.
// Scores are on a 0-100 scale.
type ProviderHealth struct {
	Provider         ProviderName `json:"provider"`
	ReliabilityScore float64      `json:"reliabilityScore"`
	SpeedScore       float64      `json:"speedScore"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// HealthSnapshot maps providers to their latest health signal. Missing entries are allowed.
type HealthSnapshot map[ProviderName]ProviderHealth

// RoutingContext carries the per-call signals the scoring router consumes
type RoutingContext struct {
	MonthlyVolume   decimal.Decimal `json:"monthlyVolume"`
	ProjectedVolume decimal.Decimal `json:"projectedVolume"`
	Health          HealthSnapshot  `json:"health,omitempty"`
}

// ProviderScore holds the component and weighted scores of one provider for one call
type ProviderScore struct {
	Provider         ProviderName    `json:"provider"`
	Fee              decimal.Decimal `json:"fee"`
	CostScore        float64         `json:"costScore"`
	ReliabilityScore float64         `json:"reliabilityScore"`
	SpeedScore       float64         `json:"speedScore"`
	VolumeFitScore   float64         `json:"volumeFitScore"`
	TotalScore       float64         `json:"totalScore"`
	HealthMissing    bool            `json:"healthMissing,omitempty"`
}

// RoutingDecision is the ranked outcome of a scoring call
type RoutingDecision struct {
	ID               uuid.UUID       `json:"id"`
	MerchantID       string          `json:"merchantId"`
	Amount           decimal.Decimal `json:"amount"`
	Strategy         Strategy        `json:"strategy"`
	SelectedProvider ProviderName    `json:"selectedProvider"`
	Ranking          []ProviderScore `json:"ranking"`
	Alternates       []ProviderName  `json:"alternates"`
	Confidence       float64         `json:"confidence"`
	Reasoning        []string        `json:"reasoning"`
	DecidedAt        time.Time       `json:"decidedAt"`
}

// RankedProviders returns the providers in ranking order
func (d *RoutingDecision) RankedProviders() []ProviderName {
	out := make([]ProviderName, 0, len(d.Ranking))
	for _, s := range d.Ranking {
		out = append(out, s.Provider)
	}
	return out
}

// SelectionMode records how a provider was selected
type SelectionMode string

const (
	ModeSmart    SelectionMode = "smart"
	ModeCostOnly SelectionMode = "cost_only"
)

// ProviderSelection is what the orchestrator hands back to the charge-initiating caller
type ProviderSelection struct {
	Provider      ProviderName     `json:"provider"`
	FallbackChain []ProviderName   `json:"fallbackChain"`
	Mode          SelectionMode    `json:"mode"`
	Reason        string           `json:"reason,omitempty"`
	EstimatedFee  decimal.Decimal  `json:"estimatedFee"`
	Decision      *RoutingDecision `json:"decision,omitempty"`
}
