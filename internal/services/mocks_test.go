package services

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
)

// MockTransactionSource is a mock implementation of TransactionSource
type MockTransactionSource struct {
	mock.Mock
}

func (m *MockTransactionSource) CompletedTransactions(ctx context.Context, merchantID string, from, to time.Time) ([]models.TransactionRecord, error) {
	args := m.Called(ctx, merchantID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TransactionRecord), args.Error(1)
}

// MockAlertPublisher is a mock implementation of AlertPublisher
type MockAlertPublisher struct {
	mock.Mock
}

func (m *MockAlertPublisher) PublishVolumeAlert(ctx context.Context, alert models.VolumeAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

// MockVolumeSignals is a mock implementation of VolumeSignals
type MockVolumeSignals struct {
	mock.Mock
}

func (m *MockVolumeSignals) Forecast(ctx context.Context, merchantID string, horizonDays int) (*models.VolumeForecast, error) {
	args := m.Called(ctx, merchantID, horizonDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VolumeForecast), args.Error(1)
}

// MockHealthSource is a mock implementation of HealthSource
type MockHealthSource struct {
	mock.Mock
}

func (m *MockHealthSource) Snapshot(ctx context.Context) (models.HealthSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.HealthSnapshot), args.Error(1)
}

// MockFallbackPublisher is a mock implementation of FallbackPublisher
type MockFallbackPublisher struct {
	mock.Mock
}

func (m *MockFallbackPublisher) PublishRoutingFallback(ctx context.Context, merchantID string, selection models.ProviderSelection) error {
	args := m.Called(ctx, merchantID, selection)
	return args.Error(0)
}

// MockExecutorProvider is a mock implementation of ExecutorProvider
type MockExecutorProvider struct {
	mock.Mock
}

func (m *MockExecutorProvider) Executor(cfg models.ProviderConfig) (gateway.Executor, error) {
	args := m.Called(cfg.Name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(gateway.Executor), args.Error(1)
}

// MockExecutor is a mock implementation of gateway.Executor
type MockExecutor struct {
	mock.Mock
	provider models.ProviderName
}

func (m *MockExecutor) Provider() models.ProviderName {
	return m.provider
}

func (m *MockExecutor) Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChargeResult), args.Error(1)
}

func (m *MockExecutor) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RefundResult), args.Error(1)
}

// MockTransactionRecorder is a mock implementation of TransactionRecorder
type MockTransactionRecorder struct {
	mock.Mock
}

func (m *MockTransactionRecorder) CreateTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

// stubConfig serves a fixed provider and routing configuration
type stubConfig struct {
	providers []models.ProviderConfig
	routing   models.RoutingConfig
	views     int
}

func (c *stubConfig) RoutingView() ([]models.ProviderConfig, models.RoutingConfig) {
	c.views++
	return c.EnabledProviders(), c.Routing()
}

func (c *stubConfig) EnabledProviders() []models.ProviderConfig {
	var out []models.ProviderConfig
	for _, p := range c.providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func (c *stubConfig) Routing() models.RoutingConfig {
	return c.routing.Clone()
}

func (c *stubConfig) GetProvider(name models.ProviderName) (models.ProviderConfig, bool) {
	for _, p := range c.providers {
		if p.Name == name {
			return p, true
		}
	}
	return models.ProviderConfig{}, false
}

// newStubConfig enables the given providers with the default routing setup
func newStubConfig(providers ...models.ProviderName) *stubConfig {
	c := &stubConfig{
		routing: models.RoutingConfig{
			Enabled:          true,
			DefaultStrategy:  models.StrategyBalanced,
			FallbackProvider: models.ProviderStripe,
			VolumeThresholds: gateway.DefaultVolumeThresholds(),
		},
	}
	for _, p := range providers {
		c.providers = append(c.providers, models.ProviderConfig{
			Name:           p,
			Enabled:        true,
			Environment:    models.EnvironmentSandbox,
			TimeoutSeconds: 5,
		})
	}
	return c
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
