package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"payment-routing-service/internal/models"
)

// Scope selects which sections of the configuration are persisted
type Scope string

const (
	ScopeProviders Scope = "providers"
	ScopeRouting   Scope = "routing"
	ScopeFeatures  Scope = "features"
	ScopeSecurity  Scope = "security"
	ScopeAll       Scope = "all"
)

// ParseScope validates a scope name
func ParseScope(name string) (Scope, error) {
	switch s := Scope(strings.ToLower(strings.TrimSpace(name))); s {
	case ScopeProviders, ScopeRouting, ScopeFeatures, ScopeSecurity, ScopeAll:
		return s, nil
	}
	return "", fmt.Errorf("unknown configuration scope %q", name)
}

func (s Scope) includes(section Scope) bool {
	return s == ScopeAll || s == section
}

// Store persists configuration documents
type Store interface {
	// Load returns the persisted document, or nil when nothing has been saved
	Load() (*Document, error)
	// Save merges the sections of doc selected by scope into the persisted document
	Save(scope Scope, doc *Document) error
}

// Document is the persisted form of the configuration. Absent fields keep
// their default value when the document is overlaid.
type Document struct {
	Providers map[string]ProviderDocument `yaml:"providers,omitempty"`
	Routing   *RoutingDocument            `yaml:"routing,omitempty"`
	Features  map[string]bool             `yaml:"features,omitempty"`
	Security  *SecurityDocument           `yaml:"security,omitempty"`
}

// ProviderDocument is the persisted form of a provider
type ProviderDocument struct {
	Enabled        *bool             `yaml:"enabled,omitempty"`
	APIKey         string            `yaml:"api_key,omitempty"`
	SecretKey      string            `yaml:"secret_key,omitempty"`
	Environment    string            `yaml:"environment,omitempty"`
	WebhookURL     string            `yaml:"webhook_url,omitempty"`
	TimeoutSeconds *int              `yaml:"timeout_seconds,omitempty"`
	RetryAttempts  *int              `yaml:"retry_attempts,omitempty"`
	Settings       map[string]string `yaml:"settings,omitempty"`
}

// RoutingDocument is the persisted form of the routing section
type RoutingDocument struct {
	Enabled          *bool              `yaml:"enabled,omitempty"`
	DefaultStrategy  string             `yaml:"default_strategy,omitempty"`
	FallbackProvider string             `yaml:"fallback_provider,omitempty"`
	VolumeThresholds map[string]string  `yaml:"volume_thresholds,omitempty"`
	ProviderWeights  map[string]float64 `yaml:"provider_weights,omitempty"`
}

// SecurityDocument is the persisted form of the security section
type SecurityDocument struct {
	RequireCredentialEncryption *bool    `yaml:"require_credential_encryption,omitempty"`
	RequireSignatureValidation  *bool    `yaml:"require_signature_validation,omitempty"`
	MaxRequestsPerMinute        *int     `yaml:"max_requests_per_minute,omitempty"`
	AllowedOrigins              []string `yaml:"allowed_origins,omitempty"`
}

// YAMLStore keeps the configuration in routing.<environment>.yaml
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a store for the given directory and environment
func NewYAMLStore(dir, environment string) *YAMLStore {
	return &YAMLStore{path: filepath.Join(dir, fmt.Sprintf("routing.%s.yaml", environment))}
}

// Path returns the file backing the store
func (s *YAMLStore) Path() string {
	return s.path
}

// Load reads the persisted document
func (s *YAMLStore) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return &doc, nil
}

// Save merges the selected sections into the file and replaces it atomically
func (s *YAMLStore) Save(scope Scope, doc *Document) error {
	existing, err := s.Load()
	if err != nil {
		return err
	}
	if existing == nil {
		existing = &Document{}
	}

	if scope.includes(ScopeProviders) {
		existing.Providers = doc.Providers
	}
	if scope.includes(ScopeRouting) {
		existing.Routing = doc.Routing
	}
	if scope.includes(ScopeFeatures) {
		existing.Features = doc.Features
	}
	if scope.includes(ScopeSecurity) {
		existing.Security = doc.Security
	}

	data, err := yaml.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".routing-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// toDocument renders settings as a document. Credentials are left out when
// the security posture requires them to be encrypted at rest.
func toDocument(s *Settings) *Document {
	omitCredentials := s.Security.RequireCredentialEncryption

	doc := &Document{
		Providers: make(map[string]ProviderDocument, len(s.Providers)),
		Features:  s.Features.AsMap(),
	}
	for name, p := range s.Providers {
		enabled := p.Enabled
		timeout := p.TimeoutSeconds
		retries := p.RetryAttempts
		pd := ProviderDocument{
			Enabled:        &enabled,
			Environment:    string(p.Environment),
			WebhookURL:     p.WebhookURL,
			TimeoutSeconds: &timeout,
			RetryAttempts:  &retries,
			Settings:       p.Clone().Settings,
		}
		if !omitCredentials {
			pd.APIKey = p.APIKey.Reveal()
			pd.SecretKey = p.SecretKey.Reveal()
		}
		doc.Providers[string(name)] = pd
	}

	routingEnabled := s.Routing.Enabled
	doc.Routing = &RoutingDocument{
		Enabled:          &routingEnabled,
		DefaultStrategy:  string(s.Routing.DefaultStrategy),
		FallbackProvider: string(s.Routing.FallbackProvider),
		VolumeThresholds: make(map[string]string, len(s.Routing.VolumeThresholds)),
		ProviderWeights:  make(map[string]float64, len(s.Routing.ProviderWeights)),
	}
	for name, amount := range s.Routing.VolumeThresholds {
		doc.Routing.VolumeThresholds[name] = amount.StringFixed(2)
	}
	for p, w := range s.Routing.ProviderWeights {
		doc.Routing.ProviderWeights[string(p)] = w
	}

	encrypt := s.Security.RequireCredentialEncryption
	signatures := s.Security.RequireSignatureValidation
	maxRequests := s.Security.MaxRequestsPerMinute
	doc.Security = &SecurityDocument{
		RequireCredentialEncryption: &encrypt,
		RequireSignatureValidation:  &signatures,
		MaxRequestsPerMinute:        &maxRequests,
		AllowedOrigins:              append([]string(nil), s.Security.AllowedOrigins...),
	}
	return doc
}

// overlayDocument applies a persisted document on top of settings and
// returns problems that prevented individual values from being applied
func overlayDocument(s *Settings, doc *Document) []string {
	var problems []string

	for rawName, pd := range doc.Providers {
		name, _ := models.ParseProviderName(rawName)
		p, ok := s.Providers[name]
		if !ok {
			p = models.ProviderConfig{Name: name, Settings: map[string]string{}}
		}
		if pd.Enabled != nil {
			p.Enabled = *pd.Enabled
		}
		if pd.APIKey != "" {
			p.APIKey = models.Credential(pd.APIKey)
		}
		if pd.SecretKey != "" {
			p.SecretKey = models.Credential(pd.SecretKey)
		}
		if pd.Environment != "" {
			p.Environment = models.Environment(strings.ToLower(pd.Environment))
		}
		if pd.WebhookURL != "" {
			p.WebhookURL = pd.WebhookURL
		}
		if pd.TimeoutSeconds != nil {
			p.TimeoutSeconds = *pd.TimeoutSeconds
		}
		if pd.RetryAttempts != nil {
			p.RetryAttempts = *pd.RetryAttempts
		}
		if p.Settings == nil {
			p.Settings = map[string]string{}
		}
		for k, v := range pd.Settings {
			p.Settings[k] = v
		}
		s.Providers[name] = p
	}

	if r := doc.Routing; r != nil {
		if r.Enabled != nil {
			s.Routing.Enabled = *r.Enabled
		}
		if r.DefaultStrategy != "" {
			s.Routing.DefaultStrategy = models.Strategy(strings.ToLower(r.DefaultStrategy))
		}
		if r.FallbackProvider != "" {
			s.Routing.FallbackProvider, _ = models.ParseProviderName(r.FallbackProvider)
		}
		if r.VolumeThresholds != nil {
			s.Routing.VolumeThresholds = make(map[string]decimal.Decimal, len(r.VolumeThresholds))
			for name, raw := range r.VolumeThresholds {
				amount, err := decimal.NewFromString(raw)
				if err != nil {
					problems = append(problems, fmt.Sprintf("routing: volume threshold %q is not a number", name))
					continue
				}
				s.Routing.VolumeThresholds[name] = amount
			}
		}
		if r.ProviderWeights != nil {
			s.Routing.ProviderWeights = make(map[models.ProviderName]float64, len(r.ProviderWeights))
			for name, w := range r.ProviderWeights {
				p, _ := models.ParseProviderName(name)
				s.Routing.ProviderWeights[p] = w
			}
		}
	}

	for name, enabled := range doc.Features {
		if err := s.Features.Set(name, enabled); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if sec := doc.Security; sec != nil {
		if sec.RequireCredentialEncryption != nil {
			s.Security.RequireCredentialEncryption = *sec.RequireCredentialEncryption
		}
		if sec.RequireSignatureValidation != nil {
			s.Security.RequireSignatureValidation = *sec.RequireSignatureValidation
		}
		if sec.MaxRequestsPerMinute != nil {
			s.Security.MaxRequestsPerMinute = *sec.MaxRequestsPerMinute
		}
		if sec.AllowedOrigins != nil {
			s.Security.AllowedOrigins = append([]string(nil), sec.AllowedOrigins...)
		}
	}
	return problems
}
