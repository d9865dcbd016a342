package models

import (
	"fmt"
	"sort"
	"strings"
)

// Feature flag names
const (
	FeatureAnalytics      = "analytics"
	FeatureAutoRefunds    = "auto_refunds"
	FeatureWebhookRetries = "webhook_retries"
	FeatureRateLimiting   = "rate_limiting"
)

// FeatureFlags are platform-wide toggles
type FeatureFlags struct {
	Analytics      bool `json:"analytics" yaml:"analytics"`
	AutoRefunds    bool `json:"auto_refunds" yaml:"auto_refunds"`
	WebhookRetries bool `json:"webhook_retries" yaml:"webhook_retries"`
	RateLimiting   bool `json:"rate_limiting" yaml:"rate_limiting"`
}

// FeatureNames returns all known feature flag names in lexical order
func FeatureNames() []string {
	names := []string{FeatureAnalytics, FeatureAutoRefunds, FeatureWebhookRetries, FeatureRateLimiting}
	sort.Strings(names)
	return names
}

// Get returns the value of a named flag and whether the name is known
func (f FeatureFlags) Get(name string) (bool, bool) {
	switch strings.ToLower(name) {
	case FeatureAnalytics:
		return f.Analytics, true
	case FeatureAutoRefunds:
		return f.AutoRefunds, true
	case FeatureWebhookRetries:
		return f.WebhookRetries, true
	case FeatureRateLimiting:
		return f.RateLimiting, true
	}
	return false, false
}

// Set changes a named flag
func (f *FeatureFlags) Set(name string, enabled bool) error {
	switch strings.ToLower(name) {
	case FeatureAnalytics:
		f.Analytics = enabled
	case FeatureAutoRefunds:
		f.AutoRefunds = enabled
	case FeatureWebhookRetries:
		f.WebhookRetries = enabled
	case FeatureRateLimiting:
		f.RateLimiting = enabled
	default:
		return fmt.Errorf("unknown feature flag %q", name)
	}
	return nil
}

// AsMap returns the flags keyed by name
func (f FeatureFlags) AsMap() map[string]bool {
	out := make(map[string]bool, 4)
	for _, name := range FeatureNames() {
		out[name], _ = f.Get(name)
	}
	return out
}

// SecurityConfig is the security posture of the routing service
type SecurityConfig struct {
	RequireCredentialEncryption bool     `json:"requireCredentialEncryption" yaml:"require_credential_encryption"`
	RequireSignatureValidation  bool     `json:"requireSignatureValidation" yaml:"require_signature_validation"`
	MaxRequestsPerMinute        int      `json:"maxRequestsPerMinute" yaml:"max_requests_per_minute"`
	AllowedOrigins              []string `json:"allowedOrigins" yaml:"allowed_origins"`
}

// Clone returns a deep copy of the security config
func (s SecurityConfig) Clone() SecurityConfig {
	clone := s
	clone.AllowedOrigins = append([]string(nil), s.AllowedOrigins...)
	return clone
}
