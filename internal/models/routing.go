package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownStrategy is returned when a routing strategy name is not recognised
var ErrUnknownStrategy = errors.New("unknown routing strategy")

// Strategy is a named weighting policy over the scoring dimensions
type Strategy string

const (
	StrategyCostOptimal      Strategy = "cost_optimal"
	StrategyReliabilityFirst Strategy = "reliability_first"
	StrategySpeedOptimal     Strategy = "speed_optimal"
	StrategyBalanced         Strategy = "balanced"
	StrategyVolumeAware      Strategy = "volume_aware"
)

// StrategyWeights is the weight vector a strategy applies to the component scores
type StrategyWeights struct {
	Cost        float64 `json:"cost"`
	Reliability float64 `json:"reliability"`
	Speed       float64 `json:"speed"`
	VolumeFit   float64 `json:"volumeFit"`
}

// Sum returns the total of all weights
func (w StrategyWeights) Sum() float64 {
	return w.Cost + w.Reliability + w.Speed + w.VolumeFit
}

var strategyWeights = map[Strategy]StrategyWeights{
	StrategyCostOptimal:      {Cost: 0.70, Reliability: 0.15, Speed: 0.10, VolumeFit: 0.05},
	StrategyReliabilityFirst: {Cost: 0.15, Reliability: 0.60, Speed: 0.15, VolumeFit: 0.10},
	StrategySpeedOptimal:     {Cost: 0.15, Reliability: 0.15, Speed: 0.60, VolumeFit: 0.10},
	StrategyBalanced:         {Cost: 0.30, Reliability: 0.30, Speed: 0.20, VolumeFit: 0.20},
	StrategyVolumeAware:      {Cost: 0.30, Reliability: 0.15, Speed: 0.10, VolumeFit: 0.45},
}

// Strategies returns every defined strategy in a stable order
func Strategies() []Strategy {
	out := make([]Strategy, 0, len(strategyWeights))
	for s := range strategyWeights {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseStrategy validates a strategy name at the boundary
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := strategyWeights[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Weights returns the weight vector of the strategy
func (s Strategy) Weights() (StrategyWeights, bool) {
	w, ok := strategyWeights[s]
	return w, ok
}

// Valid reports whether s is a defined strategy
func (s Strategy) Valid() bool {
	_, ok := strategyWeights[s]
	return ok
}

// RoutingConfig controls smart routing
type RoutingConfig struct {
	Enabled          bool                       `json:"enabled"`
	DefaultStrategy  Strategy                   `json:"defaultStrategy"`
	FallbackProvider ProviderName               `json:"fallbackProvider"`
	VolumeThresholds map[string]decimal.Decimal `json:"volumeThresholds"`
	ProviderWeights  map[ProviderName]float64   `json:"providerWeights,omitempty"`
}

// Clone returns a deep copy of the routing config
func (r RoutingConfig) Clone() RoutingConfig {
	clone := r
	clone.VolumeThresholds = make(map[string]decimal.Decimal, len(r.VolumeThresholds))
	for k, v := range r.VolumeThresholds {
		clone.VolumeThresholds[k] = v
	}
	clone.ProviderWeights = make(map[ProviderName]float64, len(r.ProviderWeights))
	for k, v := range r.ProviderWeights {
		clone.ProviderWeights[k] = v
	}
	return clone
}

// ProviderWeight returns the multiplier applied to a provider's total score
func (r RoutingConfig) ProviderWeight(p ProviderName) float64 {
	if w, ok := r.ProviderWeights[p]; ok {
		return w
	}
	return 1.0
}

// RoutingUpdate carries administrative changes to the routing config
type RoutingUpdate struct {
	Enabled          *bool                      `json:"enabled,omitempty"`
	DefaultStrategy  *string                    `json:"defaultStrategy,omitempty"`
	FallbackProvider *string                    `json:"fallbackProvider,omitempty"`
	VolumeThresholds map[string]decimal.Decimal `json:"volumeThresholds,omitempty"`
	ProviderWeights  map[ProviderName]float64   `json:"providerWeights,omitempty"`
}

// Apply returns a copy of cfg with the update applied. Strategy names are kept
// verbatim so validation can report unknown ones.
func (u RoutingUpdate) Apply(cfg RoutingConfig) RoutingConfig {
	out := cfg.Clone()
	if u.Enabled != nil {
		out.Enabled = *u.Enabled
	}
	if u.DefaultStrategy != nil {
		out.DefaultStrategy = Strategy(strings.ToLower(strings.TrimSpace(*u.DefaultStrategy)))
	}
	if u.FallbackProvider != nil {
		out.FallbackProvider = ProviderName(strings.ToLower(strings.TrimSpace(*u.FallbackProvider)))
	}
	if u.VolumeThresholds != nil {
		out.VolumeThresholds = make(map[string]decimal.Decimal, len(u.VolumeThresholds))
		for k, v := range u.VolumeThresholds {
			out.VolumeThresholds[k] = v
		}
	}
	if u.ProviderWeights != nil {
		out.ProviderWeights = make(map[ProviderName]float64, len(u.ProviderWeights))
		for k, v := range u.ProviderWeights {
			out.ProviderWeights[k] = v
		}
	}
	return out
}
