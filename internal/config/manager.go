package config

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"payment-routing-service/internal/models"
)

var (
	// ErrProviderNotConfigured is returned when updating a provider that has no configuration
	ErrProviderNotConfigured = errors.New("provider is not configured")
	// ErrUnknownFeature is returned for feature flag names that do not exist
	ErrUnknownFeature = errors.New("unknown feature flag")
	// ErrNoStore is returned by Save when persistence is disabled
	ErrNoStore = errors.New("no configuration store configured")
)

// Manager owns the routing configuration. Readers get a complete snapshot
// through one atomic load; writers are serialized and publish a new snapshot
// only after it validates and persists.
type Manager struct {
	current atomic.Pointer[Settings]
	mu      sync.Mutex
	store   Store
	logger  *logrus.Entry
}

// NewManager builds the configuration from defaults, the persisted document
// and the environment, in increasing precedence. Problems are logged, never fatal.
// A nil store disables persistence.
func NewManager(store Store, lookup LookupEnv, logger *logrus.Logger) *Manager {
	m := &Manager{
		store:  store,
		logger: logger.WithField("component", "config_manager"),
	}
	if lookup == nil {
		lookup = OSEnv
	}

	s := DefaultSettings()

	if store != nil {
		doc, err := store.Load()
		if err != nil {
			m.logger.WithError(err).Warn("Ignoring persisted routing configuration")
		} else if doc != nil {
			for _, problem := range overlayDocument(s, doc) {
				m.logger.WithField("issue", problem).Warn("Persisted configuration value skipped")
			}
		}
	}

	for _, problem := range overlayEnv(s, lookup) {
		m.logger.WithField("issue", problem).Warn("Environment override skipped")
	}

	disableUnready(s, m.logger)

	for _, issue := range Validate(s) {
		m.logger.WithField("issue", issue).Warn("Configuration validation issue")
	}

	m.current.Store(s)
	return m
}

// NewManagerFromSettings wraps an explicit configuration without loading anything
func NewManagerFromSettings(s *Settings, store Store, logger *logrus.Logger) *Manager {
	m := &Manager{
		store:  store,
		logger: logger.WithField("component", "config_manager"),
	}
	m.current.Store(s.Clone())
	return m
}

// Snapshot returns the current configuration. Callers must not modify it.
func (m *Manager) Snapshot() *Settings {
	return m.current.Load()
}

// GetProvider returns a copy of one provider's configuration
func (m *Manager) GetProvider(name models.ProviderName) (models.ProviderConfig, bool) {
	p, ok := m.Snapshot().Providers[name]
	if !ok {
		return models.ProviderConfig{}, false
	}
	return p.Clone(), true
}

// Providers returns every configured provider sorted by name
func (m *Manager) Providers() []models.ProviderConfig {
	s := m.Snapshot()
	out := make([]models.ProviderConfig, 0, len(s.Providers))
	for _, name := range sortedProviderKeys(s) {
		out = append(out, s.Providers[name].Clone())
	}
	return out
}

// EnabledProviders returns enabled providers sorted by name
func (m *Manager) EnabledProviders() []models.ProviderConfig {
	return m.Snapshot().EnabledProviders()
}

// RoutingView returns the enabled providers and a copy of the routing
// configuration, both read from one snapshot
func (m *Manager) RoutingView() ([]models.ProviderConfig, models.RoutingConfig) {
	s := m.Snapshot()
	return s.EnabledProviders(), s.Routing.Clone()
}

// IsFeatureEnabled reports whether a feature flag is on. Unknown flags are off.
func (m *Manager) IsFeatureEnabled(name string) bool {
	enabled, _ := m.Snapshot().Features.Get(name)
	return enabled
}

// Features returns the feature flags
func (m *Manager) Features() models.FeatureFlags {
	return m.Snapshot().Features
}

// Routing returns a copy of the routing configuration
func (m *Manager) Routing() models.RoutingConfig {
	return m.Snapshot().Routing.Clone()
}

// Security returns a copy of the security configuration
func (m *Manager) Security() models.SecurityConfig {
	return m.Snapshot().Security.Clone()
}

// Validate checks the current configuration
func (m *Manager) Validate() ValidationResult {
	issues := Validate(m.Snapshot())
	if issues == nil {
		issues = []string{}
	}
	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// UpdateProvider applies an administrative change to one provider
func (m *Manager) UpdateProvider(name models.ProviderName, update models.ProviderUpdate) (models.ProviderConfig, error) {
	var result models.ProviderConfig
	err := m.mutate(ScopeProviders, func(s *Settings) error {
		current, ok := s.Providers[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
		}
		result = update.Apply(current)
		s.Providers[name] = result
		return nil
	})
	if err != nil {
		return models.ProviderConfig{}, err
	}
	m.logger.WithFields(logrus.Fields{
		"provider": name,
		"enabled":  result.Enabled,
	}).Info("Provider configuration updated")
	if (update.APIKey != nil || update.SecretKey != nil) && m.Snapshot().Security.RequireCredentialEncryption {
		m.logger.WithField("provider", name).Warn("Credentials are not written to the config file; they last until restart unless set in the environment")
	}
	return result.Clone(), nil
}

// UpdateRouting applies an administrative change to the routing configuration
func (m *Manager) UpdateRouting(update models.RoutingUpdate) (models.RoutingConfig, error) {
	var result models.RoutingConfig
	err := m.mutate(ScopeRouting, func(s *Settings) error {
		s.Routing = update.Apply(s.Routing)
		result = s.Routing.Clone()
		return nil
	})
	if err != nil {
		return models.RoutingConfig{}, err
	}
	m.logger.WithFields(logrus.Fields{
		"enabled":  result.Enabled,
		"strategy": result.DefaultStrategy,
		"fallback": result.FallbackProvider,
	}).Info("Routing configuration updated")
	return result, nil
}

// UpdateFeature turns a feature flag on or off
func (m *Manager) UpdateFeature(name string, enabled bool) error {
	if _, known := m.Snapshot().Features.Get(name); !known {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	err := m.mutate(ScopeFeatures, func(s *Settings) error {
		return s.Features.Set(name, enabled)
	})
	if err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{"feature": name, "enabled": enabled}).Info("Feature flag updated")
	return nil
}

// Save persists the selected sections of the current configuration
func (m *Manager) Save(scope Scope) error {
	if m.store == nil {
		return ErrNoStore
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(scope, toDocument(m.Snapshot())); err != nil {
		return fmt.Errorf("failed to save %s configuration: %w", scope, err)
	}
	return nil
}

// mutate clones the snapshot, applies fn and publishes the result only if it
// introduces no validation issue and persists without error
func (m *Manager) mutate(scope Scope, fn func(*Settings) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.Snapshot()
	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}

	if issues := introducedIssues(Validate(current), Validate(next)); len(issues) > 0 {
		return &ConfigurationError{Issues: issues}
	}

	if m.store != nil {
		if err := m.store.Save(scope, toDocument(next)); err != nil {
			return fmt.Errorf("failed to persist %s configuration: %w", scope, err)
		}
	}

	m.current.Store(next)
	return nil
}

// disableUnready turns off loaded providers that are enabled but cannot
// execute. Credentials are not persisted while encryption is required, so a
// provider saved as enabled stays off until the environment supplies them.
func disableUnready(s *Settings, logger *logrus.Entry) {
	for name, p := range s.Providers {
		if !p.Enabled || ready(name, p) {
			continue
		}
		p.Enabled = false
		s.Providers[name] = p
		logger.WithField("provider", name).Warn("Provider disabled at startup: credentials or required settings missing")
	}
}

func sortedProviderKeys(s *Settings) []models.ProviderName {
	names := make([]models.ProviderName, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}
	models.SortProviders(names)
	return names
}
