package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPeakHour is reported when a merchant has no transactions in the window
const DefaultPeakHour = 12

// DefaultWindowDays is the rolling window used for volume metrics
const DefaultWindowDays = 30

// VolumeMetrics summarizes a merchant's completed transactions over a rolling window
type VolumeMetrics struct {
	MerchantID       string          `json:"merchantId"`
	WindowDays       int             `json:"windowDays"`
	PeriodStart      time.Time       `json:"periodStart"`
	PeriodEnd        time.Time       `json:"periodEnd"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	TransactionCount int             `json:"transactionCount"`
	AverageTicket    decimal.Decimal `json:"averageTicket"`
	PeakHour         int             `json:"peakHour"`
	PeakDayVolume    decimal.Decimal `json:"peakDayVolume"`
	// GrowthRate is the fractional change against the preceding window of equal length
	GrowthRate      decimal.Decimal `json:"growthRate"`
	PrimaryProvider ProviderName    `json:"primaryProvider,omitempty"`
}

// EmptyVolumeMetrics returns zeroed metrics for a merchant with no history
func EmptyVolumeMetrics(merchantID string, windowDays int, start, end time.Time) VolumeMetrics {
	return VolumeMetrics{
		MerchantID:    merchantID,
		WindowDays:    windowDays,
		PeriodStart:   start,
		PeriodEnd:     end,
		TotalVolume:   decimal.Zero,
		AverageTicket: decimal.Zero,
		PeakHour:      DefaultPeakHour,
		PeakDayVolume: decimal.Zero,
		GrowthRate:    decimal.Zero,
	}
}

// MonthlyVolume normalizes the window volume to a 30 day month
func (m VolumeMetrics) MonthlyVolume() decimal.Decimal {
	if m.WindowDays <= 0 || m.WindowDays == DefaultWindowDays {
		return m.TotalVolume
	}
	return m.TotalVolume.Mul(decimal.NewFromInt(DefaultWindowDays)).Div(decimal.NewFromInt(int64(m.WindowDays)))
}

// MonthlyTransactionCount normalizes the transaction count to a 30 day month
func (m VolumeMetrics) MonthlyTransactionCount() decimal.Decimal {
	count := decimal.NewFromInt(int64(m.TransactionCount))
	if m.WindowDays <= 0 || m.WindowDays == DefaultWindowDays {
		return count
	}
	return count.Mul(decimal.NewFromInt(DefaultWindowDays)).Div(decimal.NewFromInt(int64(m.WindowDays)))
}

// VolumeThreshold is a named volume boundary at which a provider's pricing tier pays off
type VolumeThreshold struct {
	Name                string          `json:"name"`
	Amount              decimal.Decimal `json:"amount"`
	RecommendedProvider ProviderName    `json:"recommendedProvider"`
	FeeBenefit          string          `json:"feeBenefit"`
}

// AlertKind distinguishes approaching from exceeded threshold alerts
type AlertKind string

const (
	AlertApproaching AlertKind = "approaching"
	AlertExceeded    AlertKind = "exceeded"
)

// AlertPriority ranks alerts for operators
type AlertPriority string

const (
	PriorityHigh   AlertPriority = "high"
	PriorityMedium AlertPriority = "medium"
)

// VolumeAlert is the result of comparing a merchant's volume to one threshold
type VolumeAlert struct {
	MerchantID              string           `json:"merchantId"`
	Kind                    AlertKind        `json:"kind"`
	Threshold               VolumeThreshold  `json:"threshold"`
	CurrentVolume           decimal.Decimal  `json:"currentVolume"`
	Recommendation          string           `json:"recommendation"`
	Priority                AlertPriority    `json:"priority"`
	EstimatedMonthlySavings *decimal.Decimal `json:"estimatedMonthlySavings,omitempty"`
	CreatedAt               time.Time        `json:"createdAt"`
}

// ForecastConfidence qualifies a volume projection
type ForecastConfidence string

const (
	ConfidenceLow    ForecastConfidence = "low"
	ConfidenceMedium ForecastConfidence = "medium"
	ConfidenceHigh   ForecastConfidence = "high"
)

// VolumeForecast projects a merchant's volume over a horizon
type VolumeForecast struct {
	MerchantID      string          `json:"merchantId"`
	HorizonDays     int             `json:"horizonDays"`
	CurrentVolume   decimal.Decimal `json:"currentVolume"`
	ProjectedVolume decimal.Decimal `json:"projectedVolume"`
	// ProjectedMonthlyVolume is the 30 day run rate after growth; thresholds are compared against it
	ProjectedMonthlyVolume decimal.Decimal    `json:"projectedMonthlyVolume"`
	GrowthRatePercent      decimal.Decimal    `json:"growthRatePercent"`
	WindowVolumes          []decimal.Decimal  `json:"windowVolumes"`
	UpcomingThresholds     []VolumeThreshold  `json:"upcomingThresholds"`
	Confidence             ForecastConfidence `json:"confidence"`
}
