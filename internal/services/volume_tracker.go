package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
)

const (
	approachingRatio = 0.9
	forecastWindows  = 3
	day              = 24 * time.Hour
)

// TransactionSource reads completed transactions from the platform's history
type TransactionSource interface {
	CompletedTransactions(ctx context.Context, merchantID string, from, to time.Time) ([]models.TransactionRecord, error)
}

// AlertPublisher announces volume threshold alerts
type AlertPublisher interface {
	PublishVolumeAlert(ctx context.Context, alert models.VolumeAlert) error
}

// RoutingConfigSource exposes the routing configuration
type RoutingConfigSource interface {
	Routing() models.RoutingConfig
}

// VolumeTracker derives rolling volume metrics, threshold alerts and
// forecasts for merchants from their transaction history
type VolumeTracker struct {
	source    TransactionSource
	config    RoutingConfigSource
	fees      *gateway.FeeModel
	publisher AlertPublisher
	logger    *logrus.Entry
	now       func() time.Time

	mu sync.Mutex
	// announced holds the alert kind last published per merchant and threshold
	announced map[alertKey]models.AlertKind
}

type alertKey struct {
	merchantID string
	threshold  string
}

// NewVolumeTracker creates a new volume tracker
func NewVolumeTracker(source TransactionSource, config RoutingConfigSource, fees *gateway.FeeModel, logger *logrus.Logger) *VolumeTracker {
	return &VolumeTracker{
		source:    source,
		config:    config,
		fees:      fees,
		logger:    logger.WithField("component", "volume_tracker"),
		now:       time.Now,
		announced: make(map[alertKey]models.AlertKind),
	}
}

// WithPublisher publishes alerts raised by CheckThresholds. An alert is
// published when its kind changes for a merchant and threshold.
func (t *VolumeTracker) WithPublisher(p AlertPublisher) *VolumeTracker {
	t.publisher = p
	return t
}

// WithClock replaces the time source
func (t *VolumeTracker) WithClock(now func() time.Time) *VolumeTracker {
	t.now = now
	return t
}

// Track computes a merchant's metrics over the trailing windowDays.
// Growth is measured against the preceding window of the same length.
func (t *VolumeTracker) Track(ctx context.Context, merchantID string, windowDays int) (*models.VolumeMetrics, error) {
	if windowDays <= 0 {
		windowDays = models.DefaultWindowDays
	}
	window := time.Duration(windowDays) * day
	end := t.now().UTC()
	start := end.Add(-window)
	previousStart := start.Add(-window)

	records, err := t.source.CompletedTransactions(ctx, merchantID, previousStart, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s: %w", merchantID, err)
	}

	var current []models.TransactionRecord
	previousVolume := decimal.Zero
	for _, r := range records {
		if r.OccurredAt.Before(start) {
			previousVolume = previousVolume.Add(r.Amount)
			continue
		}
		current = append(current, r)
	}

	metrics := summarize(merchantID, windowDays, start, end, current)
	if previousVolume.IsPositive() {
		metrics.GrowthRate = metrics.TotalVolume.Sub(previousVolume).Div(previousVolume).Round(4)
	}
	return &metrics, nil
}

// summarize folds one window of transactions into metrics
func summarize(merchantID string, windowDays int, start, end time.Time, records []models.TransactionRecord) models.VolumeMetrics {
	metrics := models.EmptyVolumeMetrics(merchantID, windowDays, start, end)
	if len(records) == 0 {
		return metrics
	}

	var hourCounts [24]int
	dayVolumes := make(map[string]decimal.Decimal)
	providerVolumes := make(map[models.ProviderName]decimal.Decimal)
	total := decimal.Zero

	for _, r := range records {
		total = total.Add(r.Amount)
		at := r.OccurredAt.UTC()
		hourCounts[at.Hour()]++
		key := at.Format("2006-01-02")
		dayVolumes[key] = dayVolumes[key].Add(r.Amount)
		if r.Provider != "" {
			providerVolumes[r.Provider] = providerVolumes[r.Provider].Add(r.Amount)
		}
	}

	peakHour := 0
	for h := 1; h < 24; h++ {
		if hourCounts[h] > hourCounts[peakHour] {
			peakHour = h
		}
	}

	peakDay := decimal.Zero
	for _, v := range dayVolumes {
		if v.GreaterThan(peakDay) {
			peakDay = v
		}
	}

	var primary models.ProviderName
	primaryVolume := decimal.Zero
	for _, p := range sortedProviderNames(providerVolumes) {
		if providerVolumes[p].GreaterThan(primaryVolume) {
			primary, primaryVolume = p, providerVolumes[p]
		}
	}

	metrics.TotalVolume = total
	metrics.TransactionCount = len(records)
	metrics.AverageTicket = total.Div(decimal.NewFromInt(int64(len(records)))).Round(2)
	metrics.PeakHour = peakHour
	metrics.PeakDayVolume = peakDay
	metrics.PrimaryProvider = primary
	return metrics
}

// CheckThresholds compares a merchant's monthly volume with the configured
// thresholds. When metrics is nil the default window is tracked first.
func (t *VolumeTracker) CheckThresholds(ctx context.Context, merchantID string, metrics *models.VolumeMetrics) ([]models.VolumeAlert, error) {
	if metrics == nil {
		var err error
		if metrics, err = t.Track(ctx, merchantID, models.DefaultWindowDays); err != nil {
			return nil, err
		}
	}

	volume := metrics.MonthlyVolume()
	thresholds := gateway.BuildThresholds(t.config.Routing().VolumeThresholds, t.fees)
	now := t.now().UTC()

	alerts := make([]models.VolumeAlert, 0)
	for _, th := range thresholds {
		if !th.Amount.IsPositive() {
			continue
		}
		ratio := volume.Div(th.Amount).InexactFloat64()

		switch {
		case ratio >= 1:
			alerts = append(alerts, models.VolumeAlert{
				MerchantID:              merchantID,
				Kind:                    models.AlertExceeded,
				Threshold:               th,
				CurrentVolume:           volume,
				Priority:                models.PriorityHigh,
				Recommendation:          exceededRecommendation(volume, th),
				EstimatedMonthlySavings: t.estimateSavings(metrics, th),
				CreatedAt:               now,
			})
		case ratio >= approachingRatio:
			alerts = append(alerts, models.VolumeAlert{
				MerchantID:     merchantID,
				Kind:           models.AlertApproaching,
				Threshold:      th,
				CurrentVolume:  volume,
				Priority:       models.PriorityMedium,
				Recommendation: approachingRecommendation(volume, ratio, th),
				CreatedAt:      now,
			})
		}
	}

	if t.publisher != nil {
		for _, alert := range t.changedAlerts(merchantID, thresholds, alerts) {
			if err := t.publisher.PublishVolumeAlert(ctx, alert); err != nil {
				t.forget(merchantID, alert.Threshold.Name)
				t.logger.WithError(err).WithFields(logrus.Fields{
					"merchant_id": merchantID,
					"threshold":   alert.Threshold.Name,
				}).Warn("Failed to publish volume alert")
			}
		}
	}
	return alerts, nil
}

// changedAlerts records the merchant's current alert kinds and returns the
// alerts whose kind differs from the last one announced. Thresholds without
// an alert are cleared so crossing them again is announced.
func (t *VolumeTracker) changedAlerts(merchantID string, thresholds []models.VolumeThreshold, alerts []models.VolumeAlert) []models.VolumeAlert {
	t.mu.Lock()
	defer t.mu.Unlock()

	alerting := make(map[string]struct{}, len(alerts))
	var changed []models.VolumeAlert
	for _, alert := range alerts {
		key := alertKey{merchantID: merchantID, threshold: alert.Threshold.Name}
		alerting[alert.Threshold.Name] = struct{}{}
		if kind, ok := t.announced[key]; !ok || kind != alert.Kind {
			changed = append(changed, alert)
		}
		t.announced[key] = alert.Kind
	}
	for _, th := range thresholds {
		if _, ok := alerting[th.Name]; !ok {
			delete(t.announced, alertKey{merchantID: merchantID, threshold: th.Name})
		}
	}
	return changed
}

// forget drops an announcement that failed so the next check retries it
func (t *VolumeTracker) forget(merchantID, threshold string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.announced, alertKey{merchantID: merchantID, threshold: threshold})
}

func exceededRecommendation(volume decimal.Decimal, th models.VolumeThreshold) string {
	return fmt.Sprintf("Monthly volume %s has reached the %s threshold of %s. Route to %s: %s",
		volume.StringFixed(2), th.Name, th.Amount.StringFixed(2),
		gateway.DisplayName(th.RecommendedProvider), th.FeeBenefit)
}

func approachingRecommendation(volume decimal.Decimal, ratio float64, th models.VolumeThreshold) string {
	return fmt.Sprintf("Monthly volume %s is %.0f%% of the %s threshold of %s. %s pricing becomes available at the threshold: %s",
		volume.StringFixed(2), math.Floor(ratio*100), th.Name, th.Amount.StringFixed(2),
		gateway.DisplayName(th.RecommendedProvider), th.FeeBenefit)
}

// estimateSavings compares a month at the current volume on the merchant's
// primary provider with the threshold's recommended provider. When the
// primary provider is the recommended one, its standard pricing is the baseline.
func (t *VolumeTracker) estimateSavings(metrics *models.VolumeMetrics, th models.VolumeThreshold) *decimal.Decimal {
	volume := metrics.MonthlyVolume()
	count := metrics.MonthlyTransactionCount()
	if !volume.IsPositive() || !count.IsPositive() {
		return nil
	}

	recommended, err := t.fees.MonthlyCost(th.RecommendedProvider, volume, count)
	if err != nil {
		return nil
	}

	var baseline decimal.Decimal
	primary := metrics.PrimaryProvider
	if primary != "" && primary != th.RecommendedProvider {
		if baseline, err = t.fees.MonthlyCost(primary, volume, count); err != nil {
			return nil
		}
	} else {
		schedule, ok := t.fees.Schedule(th.RecommendedProvider)
		if !ok {
			return nil
		}
		baseline = volume.Mul(schedule.Rate).Add(count.Mul(schedule.Fixed))
	}

	savings := baseline.Sub(recommended).Round(2)
	if !savings.IsPositive() {
		return nil
	}
	return &savings
}

// Forecast projects a merchant's volume over horizonDays from up to three
// trailing 30 day windows
func (t *VolumeTracker) Forecast(ctx context.Context, merchantID string, horizonDays int) (*models.VolumeForecast, error) {
	if horizonDays <= 0 {
		horizonDays = models.DefaultWindowDays
	}
	window := time.Duration(models.DefaultWindowDays) * day
	end := t.now().UTC()
	start := end.Add(-forecastWindows * window)

	records, err := t.source.CompletedTransactions(ctx, merchantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s: %w", merchantID, err)
	}

	// Oldest window first
	volumes := make([]decimal.Decimal, forecastWindows)
	for i := range volumes {
		volumes[i] = decimal.Zero
	}
	for _, r := range records {
		idx := int(r.OccurredAt.Sub(start) / window)
		if idx < 0 || idx >= forecastWindows {
			continue
		}
		volumes[idx] = volumes[idx].Add(r.Amount)
	}

	current := volumes[forecastWindows-1]
	growth := meanGrowth(volumes)
	projectedMonthly := decimal.Max(decimal.Zero, current.Mul(decimal.NewFromInt(1).Add(growth))).Round(2)
	projected := projectedMonthly.Mul(decimal.NewFromInt(int64(horizonDays))).
		Div(decimal.NewFromInt(models.DefaultWindowDays)).Round(2)

	// Thresholds are monthly volumes, so they are compared with the monthly
	// projection whatever the horizon
	upcoming := make([]models.VolumeThreshold, 0)
	for _, th := range gateway.BuildThresholds(t.config.Routing().VolumeThresholds, t.fees) {
		if current.LessThan(th.Amount) && !projectedMonthly.LessThan(th.Amount) {
			upcoming = append(upcoming, th)
		}
	}

	return &models.VolumeForecast{
		MerchantID:             merchantID,
		HorizonDays:            horizonDays,
		CurrentVolume:          current,
		ProjectedVolume:        projected,
		ProjectedMonthlyVolume: projectedMonthly,
		GrowthRatePercent:      growth.Mul(decimal.NewFromInt(100)).Round(2),
		WindowVolumes:          volumes,
		UpcomingThresholds:     upcoming,
		Confidence:             forecastConfidence(volumes),
	}, nil
}

// meanGrowth averages period over period growth across consecutive windows
// whose base period had volume
func meanGrowth(volumes []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	n := int64(0)
	for i := 1; i < len(volumes); i++ {
		if !volumes[i-1].IsPositive() {
			continue
		}
		sum = sum.Add(volumes[i].Sub(volumes[i-1]).Div(volumes[i-1]))
		n++
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(n))
}

// forecastConfidence grades a forecast by how much history backs it and,
// with a full history, by the coefficient of variation of the windows
func forecastConfidence(volumes []decimal.Decimal) models.ForecastConfidence {
	withData := 0
	for _, v := range volumes {
		if v.IsPositive() {
			withData++
		}
	}
	switch {
	case withData < 2:
		return models.ConfidenceLow
	case withData < len(volumes):
		return models.ConfidenceMedium
	}

	var mean float64
	for _, v := range volumes {
		mean += v.InexactFloat64()
	}
	mean /= float64(len(volumes))

	var variance float64
	for _, v := range volumes {
		d := v.InexactFloat64() - mean
		variance += d * d
	}
	cv := math.Sqrt(variance/float64(len(volumes))) / mean

	switch {
	case cv < 0.2:
		return models.ConfidenceHigh
	case cv < 0.5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func sortedProviderNames(m map[models.ProviderName]decimal.Decimal) []models.ProviderName {
	names := make([]models.ProviderName, 0, len(m))
	for p := range m {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
