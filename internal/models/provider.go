package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// ProviderName identifies a payment processor the router can choose from
type ProviderName string

const (
	ProviderPayPal   ProviderName = "paypal"
	ProviderRazorpay ProviderName = "razorpay"
	ProviderSquare   ProviderName = "square"
	ProviderStripe   ProviderName = "stripe"
)

// AllProviders returns every supported provider in lexical order
func AllProviders() []ProviderName {
	providers := []ProviderName{ProviderPayPal, ProviderRazorpay, ProviderSquare, ProviderStripe}
	SortProviders(providers)
	return providers
}

// ParseProviderName normalizes a provider name and reports whether it is supported
func ParseProviderName(name string) (ProviderName, bool) {
	candidate := ProviderName(strings.ToLower(strings.TrimSpace(name)))
	for _, p := range AllProviders() {
		if p == candidate {
			return p, true
		}
	}
	return candidate, false
}

// EnvPrefix returns the environment variable prefix for the provider (e.g. SQUARE)
func (p ProviderName) EnvPrefix() string {
	return strings.ToUpper(string(p))
}

// SortProviders sorts provider names in the fixed lexical order used for tie-breaking
func SortProviders(providers []ProviderName) {
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
}

// Environment is the provider API environment
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// Valid reports whether the environment is one the providers accept
func (e Environment) Valid() bool {
	return e == EnvironmentSandbox || e == EnvironmentProduction
}

// Credential holds secret material. It never prints its value.
type Credential string

const redacted = "****"

// String redacts the credential so it can't leak into logs
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return redacted
}

// GoString redacts %#v formatting as well
func (c Credential) GoString() string {
	return c.String()
}

// MarshalJSON redacts the credential in API responses
func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Reveal returns the raw secret. Only execution clients and the config store call this.
func (c Credential) Reveal() string {
	return string(c)
}

// IsSet reports whether any secret material is present
func (c Credential) IsSet() bool {
	return strings.TrimSpace(string(c)) != ""
}

// ProviderConfig is the configuration of a single payment processor
type ProviderConfig struct {
	Name           ProviderName      `json:"name"`
	Enabled        bool              `json:"enabled"`
	APIKey         Credential        `json:"apiKey"`
	SecretKey      Credential        `json:"secretKey"`
	Environment    Environment       `json:"environment"`
	WebhookURL     string            `json:"webhookUrl,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds"`
	RetryAttempts  int               `json:"retryAttempts"`
	Settings       map[string]string `json:"settings,omitempty"`
}

// Clone returns a deep copy of the provider config
func (p ProviderConfig) Clone() ProviderConfig {
	clone := p
	if p.Settings != nil {
		clone.Settings = make(map[string]string, len(p.Settings))
		for k, v := range p.Settings {
			clone.Settings[k] = v
		}
	}
	return clone
}

// IsSandbox reports whether the provider targets its sandbox environment
func (p ProviderConfig) IsSandbox() bool {
	return p.Environment != EnvironmentProduction
}

// Setting returns a provider-specific setting value
func (p ProviderConfig) Setting(key string) string {
	if p.Settings == nil {
		return ""
	}
	return p.Settings[key]
}

// ProviderUpdate carries the fields an administrator may change on a provider.
// Nil fields are left untouched.
type ProviderUpdate struct {
	Enabled        *bool             `json:"enabled,omitempty"`
	APIKey         *string           `json:"apiKey,omitempty"`
	SecretKey      *string           `json:"secretKey,omitempty"`
	Environment    *Environment      `json:"environment,omitempty"`
	WebhookURL     *string           `json:"webhookUrl,omitempty"`
	TimeoutSeconds *int              `json:"timeoutSeconds,omitempty"`
	RetryAttempts  *int              `json:"retryAttempts,omitempty"`
	Settings       map[string]string `json:"settings,omitempty"`
}

// Apply returns a copy of cfg with the update applied. An empty settings value removes the key.
func (u ProviderUpdate) Apply(cfg ProviderConfig) ProviderConfig {
	out := cfg.Clone()
	if u.Enabled != nil {
		out.Enabled = *u.Enabled
	}
	if u.APIKey != nil {
		out.APIKey = Credential(*u.APIKey)
	}
	if u.SecretKey != nil {
		out.SecretKey = Credential(*u.SecretKey)
	}
	if u.Environment != nil {
		out.Environment = *u.Environment
	}
	if u.WebhookURL != nil {
		out.WebhookURL = *u.WebhookURL
	}
	if u.TimeoutSeconds != nil {
		out.TimeoutSeconds = *u.TimeoutSeconds
	}
	if u.RetryAttempts != nil {
		out.RetryAttempts = *u.RetryAttempts
	}
	if len(u.Settings) > 0 && out.Settings == nil {
		out.Settings = make(map[string]string, len(u.Settings))
	}
	for k, v := range u.Settings {
		if v == "" {
			delete(out.Settings, k)
			continue
		}
		out.Settings[k] = v
	}
	return out
}
