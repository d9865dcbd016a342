package config

import (
	"sort"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
)

// Settings is one complete, immutable view of the routing configuration.
// A published Settings value is never mutated; writers clone it.
type Settings struct {
	Providers map[models.ProviderName]models.ProviderConfig `json:"providers"`
	Routing   models.RoutingConfig                          `json:"routing"`
	Features  models.FeatureFlags                           `json:"features"`
	Security  models.SecurityConfig                         `json:"security"`
}

// Clone returns a deep copy
func (s *Settings) Clone() *Settings {
	out := &Settings{
		Providers: make(map[models.ProviderName]models.ProviderConfig, len(s.Providers)),
		Routing:   s.Routing.Clone(),
		Features:  s.Features,
		Security:  s.Security.Clone(),
	}
	for name, p := range s.Providers {
		out.Providers[name] = p.Clone()
	}
	return out
}

// EnabledProviders returns enabled providers sorted by name. A provider
// missing credentials or required settings is left out.
func (s *Settings) EnabledProviders() []models.ProviderConfig {
	out := make([]models.ProviderConfig, 0, len(s.Providers))
	for name, p := range s.Providers {
		if p.Enabled && ready(name, p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultSettings returns the built-in configuration. Every provider starts
// disabled because none has credentials yet.
func DefaultSettings() *Settings {
	s := &Settings{
		Providers: make(map[models.ProviderName]models.ProviderConfig),
		Routing: models.RoutingConfig{
			Enabled:          true,
			DefaultStrategy:  models.StrategyBalanced,
			FallbackProvider: models.ProviderStripe,
			VolumeThresholds: gateway.DefaultVolumeThresholds(),
			ProviderWeights:  map[models.ProviderName]float64{},
		},
		Features: models.FeatureFlags{
			Analytics:      true,
			AutoRefunds:    false,
			WebhookRetries: true,
			RateLimiting:   true,
		},
		Security: models.SecurityConfig{
			RequireCredentialEncryption: true,
			RequireSignatureValidation:  true,
			MaxRequestsPerMinute:        600,
			AllowedOrigins:              []string{"http://localhost:3000"},
		},
	}

	for _, name := range models.AllProviders() {
		spec, _ := gateway.Spec(name)
		s.Providers[name] = models.ProviderConfig{
			Name:           name,
			Environment:    models.EnvironmentSandbox,
			TimeoutSeconds: spec.DefaultTimeoutSeconds,
			RetryAttempts:  spec.DefaultRetryAttempts,
			Settings:       map[string]string{},
		}
	}
	return s
}
