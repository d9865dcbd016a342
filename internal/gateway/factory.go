package gateway

import (
	"fmt"
	"sync"

	"payment-routing-service/internal/models"
)

// ExecutorFactory creates and caches provider executors
type ExecutorFactory struct {
	mu        sync.RWMutex
	executors map[string]Executor
	opts      map[models.ProviderName][]Option
}

// NewExecutorFactory creates a new executor factory
func NewExecutorFactory() *ExecutorFactory {
	return &ExecutorFactory{
		executors: make(map[string]Executor),
		opts:      make(map[models.ProviderName][]Option),
	}
}

// WithProviderOptions sets HTTP options for the REST based executors of a provider
func (f *ExecutorFactory) WithProviderOptions(provider models.ProviderName, opts ...Option) *ExecutorFactory {
	f.mu.Lock()
	f.opts[provider] = opts
	f.mu.Unlock()
	return f
}

// Executor returns the executor for a provider configuration
func (f *ExecutorFactory) Executor(cfg models.ProviderConfig) (Executor, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", cfg.Name)
	}

	cacheKey := fmt.Sprintf("%s_%s", cfg.Name, cfg.Environment)

	f.mu.RLock()
	if ex, exists := f.executors[cacheKey]; exists {
		f.mu.RUnlock()
		return ex, nil
	}
	opts := f.opts[cfg.Name]
	f.mu.RUnlock()

	var ex Executor
	var err error

	switch cfg.Name {
	case models.ProviderStripe:
		ex, err = NewStripeExecutor(cfg)
	case models.ProviderRazorpay:
		ex, err = NewRazorpayExecutor(cfg)
	case models.ProviderSquare:
		ex, err = NewSquareExecutor(cfg, opts...)
	case models.ProviderPayPal:
		ex, err = NewPayPalExecutor(cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Name)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s executor: %w", cfg.Name, err)
	}

	f.mu.Lock()
	f.executors[cacheKey] = ex
	f.mu.Unlock()

	return ex, nil
}

// Invalidate drops cached executors of a provider after its configuration changed
func (f *ExecutorFactory) Invalidate(provider models.ProviderName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, env := range []models.Environment{models.EnvironmentSandbox, models.EnvironmentProduction, ""} {
		delete(f.executors, fmt.Sprintf("%s_%s", provider, env))
	}
}

// DisplayName returns the human readable provider name
func DisplayName(provider models.ProviderName) string {
	if s, ok := providerSpecs[provider]; ok {
		return s.DisplayName
	}
	return string(provider)
}
