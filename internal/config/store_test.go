package config

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-routing-service/internal/models"
)

// ===== Environment Overlay Tests =====

func TestOverlayEnv(t *testing.T) {
	s := DefaultSettings()
	problems := overlayEnv(s, staticEnv(map[string]string{
		"SQUARE_ENABLED":                         "true",
		"SQUARE_API_KEY":                         "sq_token",
		"SQUARE_LOCATION_ID":                     "L123",
		"SQUARE_ENVIRONMENT":                     "PRODUCTION",
		"PAYPAL_MERCHANT_ID":                     "M1",
		"PAYPAL_RETRY_ATTEMPTS":                  "1",
		"ROUTING_FALLBACK_PROVIDER":              "Square",
		"FEATURE_AUTO_REFUNDS":                   "true",
		"SECURITY_REQUIRE_SIGNATURE_VALIDATION":  "false",
		"CORS_ALLOWED_ORIGINS":                   " https://shop.example.com, ,https://*.example.com ",
		"SECURITY_MAX_REQUESTS_PER_MINUTE":       "1200",
		"SECURITY_REQUIRE_CREDENTIAL_ENCRYPTION": "",
	}))

	assert.Empty(t, problems)

	square := s.Providers[models.ProviderSquare]
	assert.True(t, square.Enabled)
	assert.Equal(t, "sq_token", square.APIKey.Reveal())
	assert.Equal(t, "L123", square.Setting("location_id"))
	assert.Equal(t, models.EnvironmentProduction, square.Environment)

	paypal := s.Providers[models.ProviderPayPal]
	assert.Equal(t, "M1", paypal.Setting("merchant_id"))
	assert.Equal(t, 1, paypal.RetryAttempts)

	assert.Equal(t, models.ProviderSquare, s.Routing.FallbackProvider)
	assert.True(t, s.Features.AutoRefunds)
	assert.False(t, s.Security.RequireSignatureValidation)
	assert.True(t, s.Security.RequireCredentialEncryption)
	assert.Equal(t, 1200, s.Security.MaxRequestsPerMinute)
	assert.Equal(t, []string{"https://shop.example.com", "https://*.example.com"}, s.Security.AllowedOrigins)
}

func TestOverlayEnv_Problems(t *testing.T) {
	s := DefaultSettings()
	problems := overlayEnv(s, staticEnv(map[string]string{
		"STRIPE_ENABLED":         "yes please",
		"STRIPE_TIMEOUT_SECONDS": "ten",
	}))

	assert.ElementsMatch(t, []string{
		`STRIPE_ENABLED: "yes please" is not a boolean`,
		`STRIPE_TIMEOUT_SECONDS: "ten" is not an integer`,
	}, problems)
	assert.False(t, s.Providers[models.ProviderStripe].Enabled)
	assert.Equal(t, 30, s.Providers[models.ProviderStripe].TimeoutSeconds)
}

// ===== Document Overlay Tests =====

func TestOverlayDocument(t *testing.T) {
	s := DefaultSettings()
	enabled := true
	problems := overlayDocument(s, &Document{
		Providers: map[string]ProviderDocument{
			"Razorpay": {Enabled: &enabled, APIKey: "rzp_key", SecretKey: "rzp_secret", Settings: map[string]string{"receipt_prefix": "ord"}},
		},
		Routing: &RoutingDocument{
			DefaultStrategy:  "Reliability_First",
			FallbackProvider: "razorpay",
			VolumeThresholds: map[string]string{"square_high_volume": "5000", "stripe_high_volume": "lots"},
		},
		Features: map[string]bool{"analytics": false, "teleportation": true},
	})

	assert.Len(t, problems, 2)
	assert.Contains(t, problems, `routing: volume threshold "stripe_high_volume" is not a number`)

	razorpay := s.Providers[models.ProviderRazorpay]
	assert.True(t, razorpay.Enabled)
	assert.Equal(t, "rzp_secret", razorpay.SecretKey.Reveal())
	assert.Equal(t, "ord", razorpay.Setting("receipt_prefix"))

	assert.Equal(t, models.StrategyReliabilityFirst, s.Routing.DefaultStrategy)
	assert.Equal(t, models.ProviderRazorpay, s.Routing.FallbackProvider)
	assert.Len(t, s.Routing.VolumeThresholds, 1)
	assert.True(t, decimal.NewFromInt(5000).Equal(s.Routing.VolumeThresholds["square_high_volume"]))
	assert.False(t, s.Features.Analytics)
	assert.Empty(t, Validate(s))
}

// ===== YAML Store Tests =====

func TestYAMLStore_LoadMissing(t *testing.T) {
	doc, err := NewYAMLStore(t.TempDir(), "production").Load()
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestYAMLStore_LoadMalformed(t *testing.T) {
	store := NewYAMLStore(t.TempDir(), "test")
	require.NoError(t, os.WriteFile(store.Path(), []byte("providers: [not, a, map"), 0o600))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestYAMLStore_SaveMergesScope(t *testing.T) {
	store := NewYAMLStore(t.TempDir(), "test")
	doc := toDocument(validSettings())

	require.NoError(t, store.Save(ScopeRouting, doc))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, saved.Providers)
	require.NotNil(t, saved.Routing)
	assert.Equal(t, "balanced", saved.Routing.DefaultStrategy)
	assert.Nil(t, saved.Security)

	require.NoError(t, store.Save(ScopeSecurity, doc))

	saved, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, saved.Routing)
	require.NotNil(t, saved.Security)
	assert.Equal(t, 600, *saved.Security.MaxRequestsPerMinute)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestParseScope(t *testing.T) {
	for _, name := range []string{"providers", "Routing", " features ", "security", "ALL"} {
		_, err := ParseScope(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseScope("credentials")
	assert.Error(t, err)
}
