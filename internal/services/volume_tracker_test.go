package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
)

var trackerNow = time.Date(2024, 6, 30, 18, 0, 0, 0, time.UTC)

func newTestTracker(source TransactionSource) *VolumeTracker {
	return NewVolumeTracker(source, newStubConfig(), gateway.DefaultFeeModel(), quietLogger()).
		WithClock(fixedClock(trackerNow))
}

// records returns n transactions of amount each, all at the given time
func records(n int, amount string, provider models.ProviderName, at time.Time) []models.TransactionRecord {
	out := make([]models.TransactionRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.TransactionRecord{
			Amount:     decimal.RequireFromString(amount),
			Provider:   provider,
			OccurredAt: at,
		})
	}
	return out
}

func daysAgo(days int, hour int) time.Time {
	d := trackerNow.AddDate(0, 0, -days)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 15, 0, 0, time.UTC)
}

// ===== Track Tests =====

func TestTrack_NoHistory(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, "merchant-1", mock.Anything, mock.Anything).
		Return([]models.TransactionRecord{}, nil)

	metrics, err := newTestTracker(source).Track(context.Background(), "merchant-1", 30)

	require.NoError(t, err)
	assert.True(t, metrics.TotalVolume.IsZero())
	assert.Equal(t, 0, metrics.TransactionCount)
	assert.True(t, metrics.AverageTicket.IsZero())
	assert.Equal(t, models.DefaultPeakHour, metrics.PeakHour)
	assert.True(t, metrics.GrowthRate.IsZero())
	assert.Empty(t, metrics.PrimaryProvider)
	source.AssertExpectations(t)
}

func TestTrack_Metrics(t *testing.T) {
	var history []models.TransactionRecord
	history = append(history, records(1, "90.00", models.ProviderStripe, daysAgo(45, 10))...)
	history = append(history, records(1, "100.00", models.ProviderSquare, daysAgo(3, 9))...)
	history = append(history, records(1, "50.00", models.ProviderSquare, daysAgo(2, 9))...)
	history = append(history, records(1, "30.00", models.ProviderStripe, daysAgo(2, 15))...)

	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, "merchant-1",
		trackerNow.Add(-60*day), trackerNow).Return(history, nil)

	metrics, err := newTestTracker(source).Track(context.Background(), "merchant-1", 30)

	require.NoError(t, err)
	assert.Equal(t, "180.00", metrics.TotalVolume.StringFixed(2))
	assert.Equal(t, 3, metrics.TransactionCount)
	assert.Equal(t, "60.00", metrics.AverageTicket.StringFixed(2))
	assert.Equal(t, 9, metrics.PeakHour)
	assert.Equal(t, "100.00", metrics.PeakDayVolume.StringFixed(2))
	assert.Equal(t, models.ProviderSquare, metrics.PrimaryProvider)
	assert.Equal(t, "1", metrics.GrowthRate.String())
	assert.Equal(t, trackerNow.Add(-30*day), metrics.PeriodStart)
	source.AssertExpectations(t)
}

func TestTrack_PeakHourTieGoesToEarliest(t *testing.T) {
	var history []models.TransactionRecord
	history = append(history, records(2, "10.00", models.ProviderStripe, daysAgo(1, 20))...)
	history = append(history, records(2, "10.00", models.ProviderStripe, daysAgo(1, 7))...)

	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(history, nil)

	metrics, err := newTestTracker(source).Track(context.Background(), "merchant-1", 7)

	require.NoError(t, err)
	assert.Equal(t, 7, metrics.PeakHour)
}

func TestTrack_DefaultWindow(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, "merchant-1",
		trackerNow.Add(-60*day), trackerNow).Return([]models.TransactionRecord{}, nil)

	metrics, err := newTestTracker(source).Track(context.Background(), "merchant-1", 0)

	require.NoError(t, err)
	assert.Equal(t, models.DefaultWindowDays, metrics.WindowDays)
	source.AssertExpectations(t)
}

func TestTrack_SourceError(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := newTestTracker(source).Track(context.Background(), "merchant-1", 30)

	assert.ErrorContains(t, err, "connection refused")
}

// ===== Threshold Tests =====

func TestCheckThresholds_ApproachingThenExceeded(t *testing.T) {
	tracker := newTestTracker(new(MockTransactionSource))

	below := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(2000), TransactionCount: 20}
	alerts, err := tracker.CheckThresholds(context.Background(), "merchant-1", below)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	approaching := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(2700), TransactionCount: 27}
	alerts, err = tracker.CheckThresholds(context.Background(), "merchant-1", approaching)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertApproaching, alerts[0].Kind)
	assert.Equal(t, models.PriorityMedium, alerts[0].Priority)
	assert.Equal(t, "square_high_volume", alerts[0].Threshold.Name)
	assert.Equal(t, models.ProviderSquare, alerts[0].Threshold.RecommendedProvider)
	assert.Nil(t, alerts[0].EstimatedMonthlySavings)
	assert.Contains(t, alerts[0].Recommendation, "99%")

	exceeded := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(2800), TransactionCount: 28, PrimaryProvider: models.ProviderStripe}
	alerts, err = tracker.CheckThresholds(context.Background(), "merchant-1", exceeded)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertExceeded, alerts[0].Kind)
	assert.Equal(t, models.PriorityHigh, alerts[0].Priority)
	assert.Contains(t, alerts[0].Recommendation, "Route to Square")
	require.NotNil(t, alerts[0].EstimatedMonthlySavings)
	// stripe 2800*2.9% + 28*0.30 = 89.60 against square 2800*2.6% + 28*0.15 = 77.00
	assert.Equal(t, "12.60", alerts[0].EstimatedMonthlySavings.StringFixed(2))
}

func TestCheckThresholds_MonotonicInVolume(t *testing.T) {
	tracker := newTestTracker(new(MockTransactionSource))
	rank := map[models.AlertKind]int{models.AlertApproaching: 1, models.AlertExceeded: 2}

	previous := 0
	for _, volume := range []int64{1000, 2400, 2443, 2600, 2714, 3000, 10000} {
		metrics := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(volume), TransactionCount: 10}
		alerts, err := tracker.CheckThresholds(context.Background(), "merchant-1", metrics)
		require.NoError(t, err)

		level := 0
		for _, a := range alerts {
			if a.Threshold.Name == "square_high_volume" {
				level = rank[a.Kind]
			}
		}
		assert.GreaterOrEqual(t, level, previous, "volume %d", volume)
		previous = level
	}
	assert.Equal(t, 2, previous)
}

func TestCheckThresholds_SavingsOnRecommendedProvider(t *testing.T) {
	tracker := newTestTracker(new(MockTransactionSource))
	metrics := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(30000), TransactionCount: 300, PrimaryProvider: models.ProviderSquare}

	alerts, err := tracker.CheckThresholds(context.Background(), "merchant-1", metrics)
	require.NoError(t, err)

	byName := map[string]models.VolumeAlert{}
	for _, a := range alerts {
		byName[a.Threshold.Name] = a
	}
	require.Contains(t, byName, "square_high_volume")
	require.Contains(t, byName, "paypal_high_volume")
	assert.NotContains(t, byName, "stripe_high_volume")

	// square standard 825.00 against its tier 749.00
	square := byName["square_high_volume"]
	require.NotNil(t, square.EstimatedMonthlySavings)
	assert.Equal(t, "76.00", square.EstimatedMonthlySavings.StringFixed(2))

	// paypal is never cheaper than square for this merchant
	assert.Nil(t, byName["paypal_high_volume"].EstimatedMonthlySavings)
}

func TestCheckThresholds_OrderedByAmount(t *testing.T) {
	tracker := newTestTracker(new(MockTransactionSource))
	metrics := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(100000), TransactionCount: 1000}

	alerts, err := tracker.CheckThresholds(context.Background(), "merchant-1", metrics)

	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "square_high_volume", alerts[0].Threshold.Name)
	assert.Equal(t, "paypal_high_volume", alerts[1].Threshold.Name)
	assert.Equal(t, "stripe_high_volume", alerts[2].Threshold.Name)
}

func TestCheckThresholds_TracksWhenMetricsMissing(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, "merchant-1", mock.Anything, mock.Anything).
		Return(records(10, "280.00", models.ProviderStripe, daysAgo(1, 12)), nil)

	alerts, err := newTestTracker(source).CheckThresholds(context.Background(), "merchant-1", nil)

	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertExceeded, alerts[0].Kind)
	assert.Equal(t, "2800.00", alerts[0].CurrentVolume.StringFixed(2))
}

func TestCheckThresholds_PublishesAlerts(t *testing.T) {
	publisher := new(MockAlertPublisher)
	publisher.On("PublishVolumeAlert", mock.Anything, mock.MatchedBy(func(a models.VolumeAlert) bool {
		return a.MerchantID == "merchant-1" && a.Kind == models.AlertExceeded
	})).Return(errors.New("nats down")).Once()

	tracker := newTestTracker(new(MockTransactionSource)).WithPublisher(publisher)
	metrics := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(2800), TransactionCount: 28}

	alerts, err := tracker.CheckThresholds(context.Background(), "merchant-1", metrics)

	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	publisher.AssertExpectations(t)
}

func TestCheckThresholds_PublishesOnlyWhenKindChanges(t *testing.T) {
	publisher := new(MockAlertPublisher)
	kindIs := func(kind models.AlertKind) interface{} {
		return mock.MatchedBy(func(a models.VolumeAlert) bool {
			return a.Threshold.Name == "square_high_volume" && a.Kind == kind
		})
	}
	publisher.On("PublishVolumeAlert", mock.Anything, kindIs(models.AlertApproaching)).Return(nil).Twice()
	publisher.On("PublishVolumeAlert", mock.Anything, kindIs(models.AlertExceeded)).Return(nil).Once()

	tracker := newTestTracker(new(MockTransactionSource)).WithPublisher(publisher)
	check := func(volume int64) {
		metrics := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(volume), TransactionCount: 10}
		_, err := tracker.CheckThresholds(context.Background(), "merchant-1", metrics)
		require.NoError(t, err)
	}

	check(2500) // approaching, published
	check(2500) // unchanged
	check(2800) // exceeded, published
	check(2800) // unchanged
	check(1000) // cleared
	check(2500) // approaching again, published

	publisher.AssertExpectations(t)
	publisher.AssertNumberOfCalls(t, "PublishVolumeAlert", 3)
}

func TestCheckThresholds_RetriesFailedPublish(t *testing.T) {
	publisher := new(MockAlertPublisher)
	publisher.On("PublishVolumeAlert", mock.Anything, mock.Anything).Return(errors.New("nats down")).Once()
	publisher.On("PublishVolumeAlert", mock.Anything, mock.Anything).Return(nil).Once()

	tracker := newTestTracker(new(MockTransactionSource)).WithPublisher(publisher)
	metrics := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(2800), TransactionCount: 28}

	for i := 0; i < 3; i++ {
		_, err := tracker.CheckThresholds(context.Background(), "merchant-1", metrics)
		require.NoError(t, err)
	}

	publisher.AssertNumberOfCalls(t, "PublishVolumeAlert", 2)
}

func TestCheckThresholds_MerchantsAnnouncedSeparately(t *testing.T) {
	publisher := new(MockAlertPublisher)
	publisher.On("PublishVolumeAlert", mock.Anything, mock.Anything).Return(nil)

	tracker := newTestTracker(new(MockTransactionSource)).WithPublisher(publisher)
	metrics := &models.VolumeMetrics{WindowDays: 30, TotalVolume: decimal.NewFromInt(2800), TransactionCount: 28}

	for _, merchant := range []string{"merchant-1", "merchant-2", "merchant-1"} {
		_, err := tracker.CheckThresholds(context.Background(), merchant, metrics)
		require.NoError(t, err)
	}

	publisher.AssertNumberOfCalls(t, "PublishVolumeAlert", 2)
}

// ===== Forecast Tests =====

// windowRecords places one transaction per window, oldest first
func windowRecords(amounts ...string) []models.TransactionRecord {
	start := trackerNow.Add(-forecastWindows * models.DefaultWindowDays * day)
	var out []models.TransactionRecord
	for i, amount := range amounts {
		if amount == "" {
			continue
		}
		at := start.Add(time.Duration(i)*models.DefaultWindowDays*day + day)
		out = append(out, records(1, amount, models.ProviderStripe, at)...)
	}
	return out
}

func TestForecast_Growth(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, "merchant-1",
		trackerNow.Add(-90*day), trackerNow).Return(windowRecords("2100", "2310", "2541"), nil)

	forecast, err := newTestTracker(source).Forecast(context.Background(), "merchant-1", 60)

	require.NoError(t, err)
	assert.Equal(t, "2541.00", forecast.CurrentVolume.StringFixed(2))
	assert.Equal(t, "10.00", forecast.GrowthRatePercent.StringFixed(2))
	assert.Equal(t, "2795.10", forecast.ProjectedMonthlyVolume.StringFixed(2))
	assert.Equal(t, "5590.20", forecast.ProjectedVolume.StringFixed(2))
	assert.Equal(t, models.ConfidenceHigh, forecast.Confidence)
	require.Len(t, forecast.WindowVolumes, 3)
	assert.Equal(t, "2100", forecast.WindowVolumes[0].String())

	require.Len(t, forecast.UpcomingThresholds, 1)
	assert.Equal(t, "square_high_volume", forecast.UpcomingThresholds[0].Name)
	source.AssertExpectations(t)
}

func TestForecast_UpcomingThresholdsUseMonthlyProjection(t *testing.T) {
	tests := []struct {
		name         string
		windows      []string
		horizonDays  int
		wantUpcoming []string
	}{
		// 4000.00 over the horizon but a flat 2000.00 a month stays under 2714
		{"long horizon flat volume", []string{"2000", "2000", "2000"}, 60, []string{}},
		// 652.19 over a week yet 2795.10 a month crosses 2714
		{"short horizon growing volume", []string{"2100", "2310", "2541"}, 7, []string{"square_high_volume"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockTransactionSource)
			source.On("CompletedTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(windowRecords(tt.windows...), nil)

			forecast, err := newTestTracker(source).Forecast(context.Background(), "merchant-1", tt.horizonDays)

			require.NoError(t, err)
			assert.Equal(t, tt.horizonDays, forecast.HorizonDays)
			names := []string{}
			for _, th := range forecast.UpcomingThresholds {
				names = append(names, th.Name)
			}
			assert.Equal(t, tt.wantUpcoming, names)
		})
	}
}

func TestForecast_GrowthIsExact(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(windowRecords("300", "400", "500"), nil)

	forecast, err := newTestTracker(source).Forecast(context.Background(), "merchant-1", 30)

	require.NoError(t, err)
	// mean of 33.33..% and 25% is 29.1666..%
	assert.Equal(t, "29.17", forecast.GrowthRatePercent.StringFixed(2))
	assert.Equal(t, "645.83", forecast.ProjectedMonthlyVolume.StringFixed(2))
	assert.True(t, forecast.ProjectedVolume.Equal(forecast.ProjectedMonthlyVolume))
}

func TestForecast_Confidence(t *testing.T) {
	tests := []struct {
		name    string
		windows []string
		want    models.ForecastConfidence
	}{
		{"no history", []string{"", "", ""}, models.ConfidenceLow},
		{"one window", []string{"", "", "500"}, models.ConfidenceLow},
		{"two windows", []string{"", "400", "500"}, models.ConfidenceMedium},
		{"steady", []string{"1000", "1050", "1000"}, models.ConfidenceHigh},
		{"uneven", []string{"1000", "2000", "1000"}, models.ConfidenceMedium},
		{"volatile", []string{"100", "1000", "100"}, models.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockTransactionSource)
			source.On("CompletedTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(windowRecords(tt.windows...), nil)

			forecast, err := newTestTracker(source).Forecast(context.Background(), "merchant-1", 30)

			require.NoError(t, err)
			assert.Equal(t, tt.want, forecast.Confidence)
		})
	}
}

func TestForecast_NoHistory(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]models.TransactionRecord{}, nil)

	forecast, err := newTestTracker(source).Forecast(context.Background(), "merchant-1", 0)

	require.NoError(t, err)
	assert.Equal(t, models.DefaultWindowDays, forecast.HorizonDays)
	assert.True(t, forecast.ProjectedVolume.IsZero())
	assert.True(t, forecast.GrowthRatePercent.IsZero())
	assert.Empty(t, forecast.UpcomingThresholds)
}

func TestForecast_DecliningVolumeNeverNegative(t *testing.T) {
	source := new(MockTransactionSource)
	source.On("CompletedTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(windowRecords("1000", "", "10"), nil)

	forecast, err := newTestTracker(source).Forecast(context.Background(), "merchant-1", 30)

	require.NoError(t, err)
	assert.False(t, forecast.ProjectedMonthlyVolume.IsNegative())
}
