package config

import (
	"fmt"
	"sort"
	"strings"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
)

// ConfigurationError is returned when a change would leave the configuration invalid
type ConfigurationError struct {
	Issues []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Issues, "; ")
}

// ValidationResult is the outcome of validating a configuration
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Validate checks a configuration and returns every issue found, sorted
func Validate(s *Settings) []string {
	var issues []string
	add := func(format string, args ...interface{}) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	enabled := 0
	for key, p := range s.Providers {
		spec, known := gateway.Spec(key)
		if !known {
			add("unknown provider %q", key)
			continue
		}
		if p.Name != key {
			add("provider %s: name %q does not match its key", key, p.Name)
		}
		if !p.Environment.Valid() {
			add("provider %s: invalid environment %q", key, p.Environment)
		}
		if p.TimeoutSeconds <= 0 {
			add("provider %s: timeout must be positive", key)
		}
		if p.RetryAttempts < 0 {
			add("provider %s: retry attempts must not be negative", key)
		}
		for setting := range p.Settings {
			if !spec.AllowsSetting(setting) {
				add("provider %s: unknown setting %q", key, setting)
			}
		}
		if !p.Enabled {
			continue
		}
		enabled++
		issues = append(issues, readinessIssues(key, p, spec)...)
	}
	if enabled == 0 {
		add("no provider is enabled")
	}

	issues = append(issues, validateRouting(s)...)

	if s.Features.AutoRefunds && !s.Features.WebhookRetries {
		add("feature %s requires %s", models.FeatureAutoRefunds, models.FeatureWebhookRetries)
	}
	if s.Features.RateLimiting && s.Security.MaxRequestsPerMinute <= 0 {
		add("rate limiting enabled but max requests per minute is %d", s.Security.MaxRequestsPerMinute)
	}

	sort.Strings(issues)
	return issues
}

// readinessIssues lists what an enabled provider lacks before it can execute
func readinessIssues(key models.ProviderName, p models.ProviderConfig, spec gateway.ProviderSpec) []string {
	var issues []string
	if !p.APIKey.IsSet() {
		issues = append(issues, fmt.Sprintf("provider %s: enabled without API key", key))
	}
	if spec.RequiresSecretKey && !p.SecretKey.IsSet() {
		issues = append(issues, fmt.Sprintf("provider %s: enabled without secret key", key))
	}
	for _, required := range spec.RequiredSettings {
		if strings.TrimSpace(p.Setting(required)) == "" {
			issues = append(issues, fmt.Sprintf("provider %s: missing required setting %q", key, required))
		}
	}
	return issues
}

// ready reports whether an enabled provider has everything it needs to execute
func ready(key models.ProviderName, p models.ProviderConfig) bool {
	spec, known := gateway.Spec(key)
	return known && len(readinessIssues(key, p, spec)) == 0
}

func validateRouting(s *Settings) []string {
	var issues []string
	r := s.Routing

	if !r.DefaultStrategy.Valid() {
		issues = append(issues, fmt.Sprintf("routing: unknown default strategy %q", r.DefaultStrategy))
	}

	if r.Enabled {
		fallback, ok := s.Providers[r.FallbackProvider]
		switch {
		case r.FallbackProvider == "":
			issues = append(issues, "routing: fallback provider is required when routing is enabled")
		case !ok:
			issues = append(issues, fmt.Sprintf("routing: fallback provider %q is not configured", r.FallbackProvider))
		case !fallback.Enabled:
			issues = append(issues, fmt.Sprintf("routing: fallback provider %q is disabled", r.FallbackProvider))
		}
	}

	for name, amount := range r.VolumeThresholds {
		if !amount.IsPositive() {
			issues = append(issues, fmt.Sprintf("routing: volume threshold %q must be positive", name))
		}
		if _, ok := gateway.ThresholdProvider(name); !ok {
			issues = append(issues, fmt.Sprintf("routing: volume threshold %q does not name a provider", name))
		}
	}

	for provider, weight := range r.ProviderWeights {
		if _, ok := gateway.Spec(provider); !ok {
			issues = append(issues, fmt.Sprintf("routing: weight for unknown provider %q", provider))
		}
		if weight < 0 {
			issues = append(issues, fmt.Sprintf("routing: weight for %s must not be negative", provider))
		}
	}
	return issues
}

// introducedIssues returns the issues in next that are not already in current
func introducedIssues(current, next []string) []string {
	seen := make(map[string]struct{}, len(current))
	for _, issue := range current {
		seen[issue] = struct{}{}
	}
	var out []string
	for _, issue := range next {
		if _, ok := seen[issue]; !ok {
			out = append(out, issue)
		}
	}
	return out
}
