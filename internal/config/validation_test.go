package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-routing-service/internal/models"
)

// ===== Validation Tests =====

func TestValidate_Defaults(t *testing.T) {
	issues := Validate(DefaultSettings())

	assert.Equal(t, []string{
		"no provider is enabled",
		`routing: fallback provider "stripe" is disabled`,
	}, issues)
}

func TestValidate_ValidSettings(t *testing.T) {
	assert.Empty(t, Validate(validSettings()))
}

func TestValidate_ProviderIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{
			name: "square without location",
			mutate: func(s *Settings) {
				p := s.Providers[models.ProviderSquare]
				p.Enabled = true
				p.APIKey = "sq_token"
				s.Providers[models.ProviderSquare] = p
			},
			want: `provider square: missing required setting "location_id"`,
		},
		{
			name: "razorpay without secret",
			mutate: func(s *Settings) {
				p := s.Providers[models.ProviderRazorpay]
				p.Enabled = true
				p.APIKey = "rzp_key"
				s.Providers[models.ProviderRazorpay] = p
			},
			want: "provider razorpay: enabled without secret key",
		},
		{
			name: "blank API key",
			mutate: func(s *Settings) {
				p := s.Providers[models.ProviderStripe]
				p.APIKey = "   "
				s.Providers[models.ProviderStripe] = p
			},
			want: "provider stripe: enabled without API key",
		},
		{
			name: "unknown setting on disabled provider",
			mutate: func(s *Settings) {
				s.Providers[models.ProviderPayPal].Settings["location_id"] = "L1"
			},
			want: `provider paypal: unknown setting "location_id"`,
		},
		{
			name: "invalid environment",
			mutate: func(s *Settings) {
				p := s.Providers[models.ProviderStripe]
				p.Environment = "staging"
				s.Providers[models.ProviderStripe] = p
			},
			want: `provider stripe: invalid environment "staging"`,
		},
		{
			name: "non-positive timeout",
			mutate: func(s *Settings) {
				p := s.Providers[models.ProviderSquare]
				p.TimeoutSeconds = 0
				s.Providers[models.ProviderSquare] = p
			},
			want: "provider square: timeout must be positive",
		},
		{
			name: "unknown provider key",
			mutate: func(s *Settings) {
				s.Providers["adyen"] = models.ProviderConfig{Name: "adyen"}
			},
			want: `unknown provider "adyen"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Contains(t, Validate(s), tt.want)
		})
	}
}

func TestSettings_EnabledProvidersSkipsUnready(t *testing.T) {
	s := validSettings()
	square := s.Providers[models.ProviderSquare]
	square.Enabled = true
	square.APIKey = "sq_token"
	s.Providers[models.ProviderSquare] = square
	paypal := s.Providers[models.ProviderPayPal]
	paypal.Enabled = true
	s.Providers[models.ProviderPayPal] = paypal

	enabled := s.EnabledProviders()

	require.Len(t, enabled, 1)
	assert.Equal(t, models.ProviderStripe, enabled[0].Name)

	square.Settings = map[string]string{"location_id": "L1"}
	s.Providers[models.ProviderSquare] = square
	assert.Len(t, s.EnabledProviders(), 2)
}

func TestValidate_SquareNeedsNoSecret(t *testing.T) {
	s := validSettings()
	p := s.Providers[models.ProviderSquare]
	p.Enabled = true
	p.APIKey = "sq_token"
	p.Settings["location_id"] = "L1"
	s.Providers[models.ProviderSquare] = p

	assert.Empty(t, Validate(s))
}

func TestValidate_RoutingIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{
			name:   "unknown strategy",
			mutate: func(s *Settings) { s.Routing.DefaultStrategy = "fastest" },
			want:   `routing: unknown default strategy "fastest"`,
		},
		{
			name:   "missing fallback",
			mutate: func(s *Settings) { s.Routing.FallbackProvider = "" },
			want:   "routing: fallback provider is required when routing is enabled",
		},
		{
			name:   "fallback not configured",
			mutate: func(s *Settings) { s.Routing.FallbackProvider = "adyen" },
			want:   `routing: fallback provider "adyen" is not configured`,
		},
		{
			name:   "non-positive threshold",
			mutate: func(s *Settings) { s.Routing.VolumeThresholds["square_high_volume"] = decimal.Zero },
			want:   `routing: volume threshold "square_high_volume" must be positive`,
		},
		{
			name:   "threshold without provider",
			mutate: func(s *Settings) { s.Routing.VolumeThresholds["enterprise"] = decimal.NewFromInt(100000) },
			want:   `routing: volume threshold "enterprise" does not name a provider`,
		},
		{
			name:   "negative weight",
			mutate: func(s *Settings) { s.Routing.ProviderWeights[models.ProviderStripe] = -1 },
			want:   "routing: weight for stripe must not be negative",
		},
		{
			name:   "rate limiting without budget",
			mutate: func(s *Settings) { s.Security.MaxRequestsPerMinute = 0 },
			want:   "rate limiting enabled but max requests per minute is 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Contains(t, Validate(s), tt.want)
		})
	}
}

func TestValidate_DisabledRoutingSkipsFallback(t *testing.T) {
	s := validSettings()
	s.Routing.Enabled = false
	s.Routing.FallbackProvider = ""

	assert.Empty(t, Validate(s))
}

func TestValidate_IssuesSorted(t *testing.T) {
	s := DefaultSettings()
	s.Routing.DefaultStrategy = "fastest"
	s.Features.AutoRefunds = true
	s.Features.WebhookRetries = false

	issues := Validate(s)

	require.Len(t, issues, 4)
	assert.IsNonDecreasing(t, issues)
}

func TestIntroducedIssues(t *testing.T) {
	current := []string{"a", "b"}
	next := []string{"a", "b", "c"}

	assert.Equal(t, []string{"c"}, introducedIssues(current, next))
	assert.Empty(t, introducedIssues(next, current))
	assert.Empty(t, introducedIssues(nil, nil))
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{Issues: []string{"one", "two"}}
	assert.Equal(t, "invalid configuration: one; two", err.Error())
}
