package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/metrics"
	"payment-routing-service/internal/models"
)

// ErrRoutingUnavailable marks a failed or timed out signal lookup. It never
// reaches callers of SelectProvider; selection degrades to cost-only instead.
var ErrRoutingUnavailable = errors.New("routing signals unavailable")

// Fallback reasons
const (
	ReasonRoutingDisabled = "routing_disabled"
	ReasonSignalsFailed   = "signals_unavailable"
	ReasonCircuitOpen     = "circuit_open"
	ReasonScoringFailed   = "scoring_failed"
)

// VolumeSignals supplies the volume projection of a merchant
type VolumeSignals interface {
	Forecast(ctx context.Context, merchantID string, horizonDays int) (*models.VolumeForecast, error)
}

// HealthSource supplies the latest provider health snapshot
type HealthSource interface {
	Snapshot(ctx context.Context) (models.HealthSnapshot, error)
}

// FallbackPublisher announces selections that degraded to cost-only ranking
type FallbackPublisher interface {
	PublishRoutingFallback(ctx context.Context, merchantID string, selection models.ProviderSelection) error
}

// RoutingServiceConfig tunes the orchestrator
type RoutingServiceConfig struct {
	SignalTimeout   time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// RoutingService is the entry point the platform calls before a charge. It
// gathers volume and health signals, asks the scoring router for a ranking
// and falls back to pure fee ranking whenever smart routing cannot run.
type RoutingService struct {
	config    ProviderConfigSource
	fees      *gateway.FeeModel
	router    *ScoringRouter
	volume    VolumeSignals
	health    HealthSource
	publisher FallbackPublisher
	metrics   *metrics.Metrics
	breaker   *gobreaker.CircuitBreaker
	timeout   time.Duration
	logger    *logrus.Entry
}

// NewRoutingService creates a new routing orchestrator
func NewRoutingService(
	config ProviderConfigSource,
	fees *gateway.FeeModel,
	volume VolumeSignals,
	health HealthSource,
	cfg RoutingServiceConfig,
	logger *logrus.Logger,
) *RoutingService {
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = 2 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	entry := logger.WithField("component", "routing_service")
	failures := cfg.BreakerFailures

	return &RoutingService{
		config:  config,
		fees:    fees,
		router:  NewScoringRouter(config, fees, logger),
		volume:  volume,
		health:  health,
		timeout: cfg.SignalTimeout,
		logger:  entry,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "routing-signals",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				entry.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Routing signal circuit changed state")
			},
		}),
	}
}

// WithPublisher publishes fallback events
func (s *RoutingService) WithPublisher(p FallbackPublisher) *RoutingService {
	s.publisher = p
	return s
}

// WithMetrics records selection metrics
func (s *RoutingService) WithMetrics(m *metrics.Metrics) *RoutingService {
	s.metrics = m
	return s
}

// SelectProvider proposes a provider and ordered fallback chain for a charge
// using the configured default strategy
func (s *RoutingService) SelectProvider(ctx context.Context, amount decimal.Decimal, merchantID string) (*models.ProviderSelection, error) {
	return s.SelectProviderWithStrategy(ctx, amount, merchantID, "")
}

// SelectProviderWithStrategy is SelectProvider with an explicit strategy.
// An empty strategy means the configured default.
func (s *RoutingService) SelectProviderWithStrategy(ctx context.Context, amount decimal.Decimal, merchantID string, strategy models.Strategy) (*models.ProviderSelection, error) {
	start := time.Now()
	if !amount.IsPositive() {
		return nil, gateway.ErrInvalidAmount
	}
	if strategy != "" && !strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, strategy)
	}
	providers, routing := s.config.RoutingView()
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if strategy == "" {
		strategy = routing.DefaultStrategy
	}

	if !routing.Enabled {
		return s.finish(ctx, merchantID, strategy, start, s.costOnly(amount, providers, routing, ReasonRoutingDisabled))
	}

	rc, err := s.signals(ctx, merchantID)
	if err != nil {
		reason := ReasonSignalsFailed
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = ReasonCircuitOpen
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"merchant_id": merchantID,
			"reason":      reason,
		}).Warn("Routing signals unavailable, using cost-only ranking")
		return s.finish(ctx, merchantID, strategy, start, s.costOnly(amount, providers, routing, reason))
	}

	decision, err := s.router.rank(amount, merchantID, strategy, rc, providers, routing)
	if err != nil {
		if errors.Is(err, ErrNoProviders) {
			return nil, err
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"merchant_id": merchantID,
			"reason":      ReasonScoringFailed,
		}).Warn("Scoring failed, using cost-only ranking")
		return s.finish(ctx, merchantID, strategy, start, s.costOnly(amount, providers, routing, ReasonScoringFailed))
	}

	selection := &models.ProviderSelection{
		Provider:      decision.SelectedProvider,
		FallbackChain: decision.RankedProviders(),
		Mode:          models.ModeSmart,
		EstimatedFee:  decision.Ranking[0].Fee,
		Decision:      decision,
	}
	return s.finish(ctx, merchantID, strategy, start, selection)
}

// Simulate runs the scoring path for operators. Signals that cannot be
// fetched are replaced by zero volume and an empty health snapshot.
func (s *RoutingService) Simulate(ctx context.Context, merchantID string, strategy models.Strategy, amount decimal.Decimal) (*models.RoutingDecision, error) {
	providers, routing := s.config.RoutingView()
	if strategy == "" {
		strategy = routing.DefaultStrategy
	}
	rc, err := s.fetchSignals(ctx, merchantID)
	if err != nil {
		s.logger.WithError(err).WithField("merchant_id", merchantID).Warn("Simulating without routing signals")
		rc = models.RoutingContext{MonthlyVolume: decimal.Zero, ProjectedVolume: decimal.Zero}
	}
	return s.router.rank(amount, merchantID, strategy, rc, providers, routing)
}

// signals fetches the routing context through the circuit breaker
func (s *RoutingService) signals(ctx context.Context, merchantID string) (models.RoutingContext, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetchSignals(ctx, merchantID)
	})
	if err != nil {
		return models.RoutingContext{}, err
	}
	return result.(models.RoutingContext), nil
}

func (s *RoutingService) fetchSignals(ctx context.Context, merchantID string) (models.RoutingContext, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	forecast, err := s.volume.Forecast(ctx, merchantID, models.DefaultWindowDays)
	if err != nil {
		return models.RoutingContext{}, fmt.Errorf("%w: volume: %v", ErrRoutingUnavailable, err)
	}

	health := models.HealthSnapshot{}
	if s.health != nil {
		if health, err = s.health.Snapshot(ctx); err != nil {
			return models.RoutingContext{}, fmt.Errorf("%w: health: %v", ErrRoutingUnavailable, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return models.RoutingContext{}, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}

	return models.RoutingContext{
		MonthlyVolume:   forecast.CurrentVolume,
		ProjectedVolume: forecast.ProjectedMonthlyVolume,
		Health:          health,
	}, nil
}

// costOnly ranks the enabled providers by standard fee. Ties go to the
// configured fallback provider, then by name.
func (s *RoutingService) costOnly(amount decimal.Decimal, providers []models.ProviderConfig, routing models.RoutingConfig, reason string) *models.ProviderSelection {
	type ranked struct {
		provider models.ProviderName
		fee      decimal.Decimal
	}

	var candidates []ranked
	for _, p := range providers {
		fee, err := s.fees.Fee(p.Name, amount)
		if err != nil {
			s.logger.WithError(err).WithField("provider", p.Name).Warn("Skipping provider without fee schedule")
			continue
		}
		candidates = append(candidates, ranked{provider: p.Name, fee: fee})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.fee.Equal(b.fee) {
			return a.fee.LessThan(b.fee)
		}
		if (a.provider == routing.FallbackProvider) != (b.provider == routing.FallbackProvider) {
			return a.provider == routing.FallbackProvider
		}
		return a.provider < b.provider
	})

	chain := make([]models.ProviderName, 0, len(candidates))
	for _, c := range candidates {
		chain = append(chain, c.provider)
	}
	return &models.ProviderSelection{
		Provider:      candidates[0].provider,
		FallbackChain: chain,
		Mode:          models.ModeCostOnly,
		Reason:        reason,
		EstimatedFee:  gateway.RoundCurrency(candidates[0].fee),
	}
}

func (s *RoutingService) finish(ctx context.Context, merchantID string, strategy models.Strategy, start time.Time, selection *models.ProviderSelection) (*models.ProviderSelection, error) {
	if selection == nil {
		return nil, ErrNoProviders
	}

	if s.metrics != nil {
		s.metrics.Decisions.WithLabelValues(string(selection.Mode), string(strategy), string(selection.Provider)).Inc()
		s.metrics.DecisionDuration.Observe(time.Since(start).Seconds())
		s.metrics.EstimatedFees.WithLabelValues(string(selection.Provider)).Observe(selection.EstimatedFee.InexactFloat64())
		if selection.Mode == models.ModeCostOnly {
			s.metrics.Fallbacks.WithLabelValues(selection.Reason).Inc()
		}
	}

	if selection.Mode == models.ModeCostOnly && s.publisher != nil {
		if err := s.publisher.PublishRoutingFallback(ctx, merchantID, *selection); err != nil {
			s.logger.WithError(err).WithField("merchant_id", merchantID).Warn("Failed to publish routing fallback event")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"merchant_id": merchantID,
		"provider":    selection.Provider,
		"mode":        selection.Mode,
		"strategy":    strategy,
	}).Debug("Provider selected")
	return selection, nil
}
