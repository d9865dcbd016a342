package services

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
)

// ErrNoProviders is returned when no provider is enabled
var ErrNoProviders = errors.New("no payment provider is enabled")

// nearTieMargin is the total score gap under which a decision is called a near tie
const nearTieMargin = 1.0

// ProviderConfigSource exposes the enabled providers and routing configuration
type ProviderConfigSource interface {
	// RoutingView reads both from the same configuration snapshot
	RoutingView() ([]models.ProviderConfig, models.RoutingConfig)
}

// ScoringRouter ranks enabled providers for a single transaction
type ScoringRouter struct {
	config ProviderConfigSource
	fees   *gateway.FeeModel
	logger *logrus.Entry
	now    func() time.Time
}

// NewScoringRouter creates a new scoring router
func NewScoringRouter(config ProviderConfigSource, fees *gateway.FeeModel, logger *logrus.Logger) *ScoringRouter {
	return &ScoringRouter{
		config: config,
		fees:   fees,
		logger: logger.WithField("component", "scoring_router"),
		now:    time.Now,
	}
}

// Route scores every enabled provider under strategy and returns the ranked decision.
// Identical inputs always yield the same ranking and confidence.
func (r *ScoringRouter) Route(amount decimal.Decimal, merchantID string, strategy models.Strategy, rc models.RoutingContext) (*models.RoutingDecision, error) {
	providers, routing := r.config.RoutingView()
	return r.rank(amount, merchantID, strategy, rc, providers, routing)
}

// rank scores providers against one configuration view
func (r *ScoringRouter) rank(
	amount decimal.Decimal,
	merchantID string,
	strategy models.Strategy,
	rc models.RoutingContext,
	providers []models.ProviderConfig,
	routing models.RoutingConfig,
) (*models.RoutingDecision, error) {
	if !amount.IsPositive() {
		return nil, gateway.ErrInvalidAmount
	}
	weights, ok := strategy.Weights()
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, strategy)
	}

	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	fitVolume := decimal.Max(rc.MonthlyVolume, rc.ProjectedVolume)

	scores := make([]models.ProviderScore, 0, len(providers))
	discounts := make([]float64, 0, len(providers))
	for _, p := range providers {
		fee, err := r.fees.FeeAtVolume(p.Name, amount, rc.MonthlyVolume)
		if err != nil {
			r.logger.WithError(err).WithField("provider", p.Name).Warn("Skipping provider without fee schedule")
			continue
		}

		score := models.ProviderScore{
			Provider:         p.Name,
			Fee:              fee,
			ReliabilityScore: models.NeutralHealthScore,
			SpeedScore:       models.NeutralHealthScore,
		}
		if h, ok := rc.Health[p.Name]; ok {
			score.ReliabilityScore = h.ReliabilityScore
			score.SpeedScore = h.SpeedScore
		} else {
			score.HealthMissing = true
		}

		discount := 0.0
		if schedule, ok := r.fees.Schedule(p.Name); ok {
			if standard := schedule.StandardFee(amount); standard.IsPositive() {
				discount = r.fees.TierDiscount(p.Name, amount, fitVolume).Div(standard).InexactFloat64()
			}
		}

		scores = append(scores, score)
		discounts = append(discounts, discount)
	}
	if len(scores) == 0 {
		return nil, ErrNoProviders
	}

	minFee := scores[0].Fee
	maxDiscount := 0.0
	for i, s := range scores {
		if s.Fee.LessThan(minFee) {
			minFee = s.Fee
		}
		if discounts[i] > maxDiscount {
			maxDiscount = discounts[i]
		}
	}

	for i := range scores {
		s := &scores[i]
		if s.Fee.IsPositive() {
			s.CostScore = round2(minFee.Div(s.Fee).InexactFloat64() * 100)
		} else {
			s.CostScore = 100
		}
		s.VolumeFitScore = models.NeutralHealthScore
		if maxDiscount > 0 {
			s.VolumeFitScore = round2(50 + 50*discounts[i]/maxDiscount)
		}
		total := weights.Cost*s.CostScore +
			weights.Reliability*s.ReliabilityScore +
			weights.Speed*s.SpeedScore +
			weights.VolumeFit*s.VolumeFitScore
		s.TotalScore = round2(total * routing.ProviderWeight(s.Provider))
	}
	// fees are rounded only after every cost score has been derived
	for i := range scores {
		scores[i].Fee = gateway.RoundCurrency(scores[i].Fee)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].TotalScore != scores[j].TotalScore {
			return scores[i].TotalScore > scores[j].TotalScore
		}
		return scores[i].Provider < scores[j].Provider
	})

	decision := &models.RoutingDecision{
		ID:               uuid.New(),
		MerchantID:       merchantID,
		Amount:           amount,
		Strategy:         strategy,
		SelectedProvider: scores[0].Provider,
		Ranking:          scores,
		Alternates:       make([]models.ProviderName, 0, len(scores)-1),
		Confidence:       decisionConfidence(scores),
		DecidedAt:        r.now().UTC(),
	}
	for _, s := range scores[1:] {
		decision.Alternates = append(decision.Alternates, s.Provider)
	}
	decision.Reasoning = explain(strategy, weights, scores)

	return decision, nil
}

// decisionConfidence is the winner's lead on a 0-100 scale, mapped to [0,1]
func decisionConfidence(scores []models.ProviderScore) float64 {
	if len(scores) < 2 {
		return 1
	}
	gap := (scores[0].TotalScore - scores[1].TotalScore) / 100
	return math.Round(math.Max(0, math.Min(1, gap))*10000) / 10000
}

func explain(strategy models.Strategy, w models.StrategyWeights, scores []models.ProviderScore) []string {
	reasons := []string{fmt.Sprintf(
		"Strategy %s weights cost %.0f%%, reliability %.0f%%, speed %.0f%%, volume fit %.0f%%",
		strategy, w.Cost*100, w.Reliability*100, w.Speed*100, w.VolumeFit*100)}

	winner := scores[0]
	var factors []string
	if w.Cost > 0 && leads(scores, func(s models.ProviderScore) float64 { return s.CostScore }) {
		factors = append(factors, "lowest cost at this volume")
	}
	if w.Reliability > 0 && leads(scores, func(s models.ProviderScore) float64 { return s.ReliabilityScore }) {
		factors = append(factors, "highest reliability score")
	}
	if w.Speed > 0 && leads(scores, func(s models.ProviderScore) float64 { return s.SpeedScore }) {
		factors = append(factors, "fastest processing")
	}
	if w.VolumeFit > 0 && winner.VolumeFitScore > models.NeutralHealthScore &&
		leads(scores, func(s models.ProviderScore) float64 { return s.VolumeFitScore }) {
		factors = append(factors, "best volume pricing fit")
	}
	if len(factors) == 0 {
		factors = append(factors, "highest combined score")
	}
	reasons = append(reasons, fmt.Sprintf("Selected %s (score %.2f, fee %s): %s",
		winner.Provider, winner.TotalScore, winner.Fee.StringFixed(2), strings.Join(factors, ", ")))

	for _, s := range scores {
		if s.HealthMissing {
			reasons = append(reasons, fmt.Sprintf("No health data for %s, neutral score %.0f used", s.Provider, models.NeutralHealthScore))
		}
	}

	if len(scores) > 1 && scores[0].TotalScore-scores[1].TotalScore < nearTieMargin {
		reasons = append(reasons, fmt.Sprintf("Near tie between %s (%.2f) and %s (%.2f)",
			scores[0].Provider, scores[0].TotalScore, scores[1].Provider, scores[1].TotalScore))
	}
	return reasons
}

// leads reports whether the first ranked provider has the highest value of a component
func leads(scores []models.ProviderScore, component func(models.ProviderScore) float64) bool {
	top := component(scores[0])
	for _, s := range scores[1:] {
		if component(s) > top {
			return false
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
