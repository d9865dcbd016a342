package gateway

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"payment-routing-service/internal/models"
)

// ProviderSpec describes the static shape of a provider's configuration
type ProviderSpec struct {
	Name        models.ProviderName
	DisplayName string
	// RequiredSettings must be present when the provider is enabled
	RequiredSettings []string
	// OptionalSettings may be present; any other key is rejected
	OptionalSettings []string
	// EnvSettings maps environment variable suffixes to setting keys (e.g. LOCATION_ID -> location_id)
	EnvSettings map[string]string
	// RequiresSecretKey is false for providers authenticating with a single access token
	RequiresSecretKey     bool
	DefaultTimeoutSeconds int
	DefaultRetryAttempts  int
}

var providerSpecs = map[models.ProviderName]ProviderSpec{
	models.ProviderStripe: {
		Name:                  models.ProviderStripe,
		DisplayName:           "Stripe",
		RequiresSecretKey:     true,
		OptionalSettings:      []string{"account_id", "statement_descriptor"},
		EnvSettings:           map[string]string{"ACCOUNT_ID": "account_id"},
		DefaultTimeoutSeconds: 30,
		DefaultRetryAttempts:  3,
	},
	models.ProviderSquare: {
		Name:                  models.ProviderSquare,
		DisplayName:           "Square",
		RequiredSettings:      []string{"location_id"},
		OptionalSettings:      []string{"application_id"},
		EnvSettings:           map[string]string{"LOCATION_ID": "location_id", "APPLICATION_ID": "application_id"},
		DefaultTimeoutSeconds: 30,
		DefaultRetryAttempts:  3,
	},
	models.ProviderPayPal: {
		Name:                  models.ProviderPayPal,
		DisplayName:           "PayPal",
		RequiresSecretKey:     true,
		RequiredSettings:      []string{"merchant_id"},
		OptionalSettings:      []string{"brand_name"},
		EnvSettings:           map[string]string{"MERCHANT_ID": "merchant_id"},
		DefaultTimeoutSeconds: 30,
		DefaultRetryAttempts:  2,
	},
	models.ProviderRazorpay: {
		Name:                  models.ProviderRazorpay,
		DisplayName:           "Razorpay",
		RequiresSecretKey:     true,
		OptionalSettings:      []string{"receipt_prefix"},
		DefaultTimeoutSeconds: 30,
		DefaultRetryAttempts:  3,
	},
}

// Spec returns the configuration schema of a provider
func Spec(provider models.ProviderName) (ProviderSpec, bool) {
	s, ok := providerSpecs[provider]
	return s, ok
}

// AllowsSetting reports whether key is a known setting for the provider
func (s ProviderSpec) AllowsSetting(key string) bool {
	for _, k := range s.RequiredSettings {
		if k == key {
			return true
		}
	}
	for _, k := range s.OptionalSettings {
		if k == key {
			return true
		}
	}
	return false
}

// ThresholdProvider resolves the provider owning a threshold name.
// Threshold names are prefixed with the provider name, e.g. square_high_volume.
func ThresholdProvider(name string) (models.ProviderName, bool) {
	lower := strings.ToLower(name)
	for _, p := range models.AllProviders() {
		prefix := string(p)
		if lower == prefix || strings.HasPrefix(lower, prefix+"_") || strings.HasPrefix(lower, prefix+"-") {
			return p, true
		}
	}
	return "", false
}

// DefaultVolumeThresholds returns the built-in thresholds, one per provider volume tier
func DefaultVolumeThresholds() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for p, s := range DefaultSchedules() {
		if s.Tier != nil {
			out[string(p)+"_high_volume"] = s.Tier.Threshold
		}
	}
	return out
}

// BuildThresholds expands configured threshold amounts into thresholds ordered by
// amount then name. Names without a known provider prefix are skipped.
func BuildThresholds(configured map[string]decimal.Decimal, fees *FeeModel) []models.VolumeThreshold {
	out := make([]models.VolumeThreshold, 0, len(configured))
	for name, amount := range configured {
		provider, ok := ThresholdProvider(name)
		if !ok {
			continue
		}
		out = append(out, models.VolumeThreshold{
			Name:                name,
			Amount:              amount,
			RecommendedProvider: provider,
			FeeBenefit:          fees.DescribeTier(provider),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.LessThan(out[j].Amount)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
