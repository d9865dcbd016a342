package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/metrics"
	"payment-routing-service/internal/models"
)

// ErrAllProvidersFailed is returned when every provider in the chain failed
var ErrAllProvidersFailed = errors.New("all payment providers failed")

// ErrNoPaymentSource is returned when no provider in the chain has a payment source
var ErrNoPaymentSource = errors.New("no payment source for any provider in the chain")

// ExecutorProvider returns the executor for a provider configuration
type ExecutorProvider interface {
	Executor(cfg models.ProviderConfig) (gateway.Executor, error)
}

// ProviderLookup returns a provider's current configuration
type ProviderLookup interface {
	GetProvider(name models.ProviderName) (models.ProviderConfig, bool)
}

// TransactionRecorder stores completed charges in the transaction history
type TransactionRecorder interface {
	CreateTransaction(ctx context.Context, tx *models.PaymentTransaction) error
}

// ChargeInput describes a charge to execute. Sources maps each provider to
// the payment token the client obtained from it.
type ChargeInput struct {
	MerchantID     string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
	Sources        map[models.ProviderName]string
	Metadata       map[string]string
}

// ChargeAttempt records one provider call
type ChargeAttempt struct {
	Provider models.ProviderName `json:"provider"`
	Error    string              `json:"error,omitempty"`
	Skipped  bool                `json:"skipped,omitempty"`
}

// ChargeOutcome is the result of walking the fallback chain
type ChargeOutcome struct {
	Selection *models.ProviderSelection `json:"selection"`
	Result    *gateway.ChargeResult     `json:"result"`
	Attempts  []ChargeAttempt           `json:"attempts"`
}

// ChargeService executes charges along the chain the routing service proposes
type ChargeService struct {
	routing   *RoutingService
	providers ProviderLookup
	executors ExecutorProvider
	recorder  TransactionRecorder
	metrics   *metrics.Metrics
	logger    *logrus.Entry
}

// NewChargeService creates a new charge service
func NewChargeService(routing *RoutingService, providers ProviderLookup, executors ExecutorProvider, recorder TransactionRecorder, logger *logrus.Logger) *ChargeService {
	return &ChargeService{
		routing:   routing,
		providers: providers,
		executors: executors,
		recorder:  recorder,
		logger:    logger.WithField("component", "charge_service"),
	}
}

// WithMetrics records charge attempt metrics
func (s *ChargeService) WithMetrics(m *metrics.Metrics) *ChargeService {
	s.metrics = m
	return s
}

// ChargeWithFallback selects a provider and charges it. A retryable failure
// moves on to the next provider in the chain; a final failure stops the walk.
func (s *ChargeService) ChargeWithFallback(ctx context.Context, in ChargeInput) (*ChargeOutcome, error) {
	selection, err := s.routing.SelectProvider(ctx, in.Amount, in.MerchantID)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.New().String()
	}
	outcome := &ChargeOutcome{Selection: selection}

	var lastErr error
	for _, provider := range selection.FallbackChain {
		source, ok := in.Sources[provider]
		if !ok || source == "" {
			outcome.Attempts = append(outcome.Attempts, ChargeAttempt{Provider: provider, Skipped: true, Error: "no payment source"})
			continue
		}

		result, err := s.attempt(ctx, provider, source, in)
		if err == nil {
			outcome.Attempts = append(outcome.Attempts, ChargeAttempt{Provider: provider})
			outcome.Result = result
			s.record(ctx, in, selection, result)
			return outcome, nil
		}

		lastErr = err
		outcome.Attempts = append(outcome.Attempts, ChargeAttempt{Provider: provider, Error: err.Error()})
		log := s.logger.WithError(err).WithFields(logrus.Fields{
			"merchant_id": in.MerchantID,
			"provider":    provider,
		})
		if !gateway.IsRetryable(err) {
			log.Warn("Charge declined, not trying further providers")
			return outcome, err
		}
		log.Warn("Charge failed, trying next provider")
	}

	if lastErr == nil {
		return outcome, ErrNoPaymentSource
	}
	return outcome, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

func (s *ChargeService) attempt(ctx context.Context, provider models.ProviderName, source string, in ChargeInput) (*gateway.ChargeResult, error) {
	cfg, ok := s.providers.GetProvider(provider)
	if !ok {
		return nil, gateway.NewGatewayError(provider, "not_configured", "provider is not configured", true)
	}
	executor, err := s.executors.Executor(cfg)
	if err != nil {
		return nil, gateway.NewGatewayError(provider, "unavailable", err.Error(), true)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := executor.Charge(callCtx, &gateway.ChargeRequest{
		MerchantID:     in.MerchantID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		SourceID:       source,
		Description:    in.Description,
		IdempotencyKey: fmt.Sprintf("%s-%s", in.IdempotencyKey, provider),
		Metadata:       in.Metadata,
	})

	if s.metrics != nil {
		s.metrics.ProviderDuration.WithLabelValues(string(provider)).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.ChargeAttempts.WithLabelValues(string(provider), outcome).Inc()
	}
	return result, err
}

func (s *ChargeService) record(ctx context.Context, in ChargeInput, selection *models.ProviderSelection, result *gateway.ChargeResult) {
	if s.recorder == nil {
		return
	}

	tx := &models.PaymentTransaction{
		MerchantID:        in.MerchantID,
		Provider:          result.Provider,
		ProviderReference: result.Reference,
		Amount:            in.Amount,
		Currency:          in.Currency,
		Status:            result.Status,
		RoutingMode:       string(selection.Mode),
	}
	if selection.Decision != nil {
		tx.RoutingStrategy = string(selection.Decision.Strategy)
	}
	if result.Provider == selection.Provider {
		tx.Fee = selection.EstimatedFee
	} else if fee, err := s.routing.fees.Fee(result.Provider, in.Amount); err == nil {
		tx.Fee = gateway.RoundCurrency(fee)
	}

	if err := s.recorder.CreateTransaction(ctx, tx); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"merchant_id": in.MerchantID,
			"reference":   result.Reference,
		}).Error("Failed to record transaction")
	}
}
