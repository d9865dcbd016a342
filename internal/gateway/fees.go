package gateway

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"payment-routing-service/internal/models"
)

// ErrInvalidAmount is returned for non-positive transaction amounts
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// ErrUnknownProvider is returned when no fee schedule exists for a provider
var ErrUnknownProvider = errors.New("unknown payment provider")

// maxFeeShare caps a fee estimate at this share of the transaction amount
var maxFeeShare = decimal.RequireFromString("0.5")

// VolumeTier is a discounted pricing plan that applies once a merchant's
// monthly volume reaches Threshold
type VolumeTier struct {
	Name       string
	Threshold  decimal.Decimal
	Rate       decimal.Decimal
	Fixed      decimal.Decimal
	MonthlyFee decimal.Decimal
}

// FeeSchedule is the per-transaction pricing of a provider
type FeeSchedule struct {
	Rate  decimal.Decimal
	Fixed decimal.Decimal
	Tier  *VolumeTier
}

// StandardFee is the fee under the provider's default pricing
func (s FeeSchedule) StandardFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.Rate).Add(s.Fixed)
}

// TierFee is the fee under the volume tier, with the monthly charge apportioned
// by the transaction's share of monthly volume. ok is false when the tier does not apply.
func (s FeeSchedule) TierFee(amount, monthlyVolume decimal.Decimal) (decimal.Decimal, bool) {
	if s.Tier == nil || !monthlyVolume.IsPositive() || monthlyVolume.LessThan(s.Tier.Threshold) {
		return decimal.Zero, false
	}
	apportioned := s.Tier.MonthlyFee.Mul(amount).Div(monthlyVolume)
	return amount.Mul(s.Tier.Rate).Add(s.Tier.Fixed).Add(apportioned), true
}

// MonthlyCost estimates a month of processing for the given volume and
// transaction count, choosing the cheaper of standard and tier pricing
func (s FeeSchedule) MonthlyCost(volume, count decimal.Decimal) decimal.Decimal {
	standard := volume.Mul(s.Rate).Add(count.Mul(s.Fixed))
	if s.Tier == nil || volume.LessThan(s.Tier.Threshold) {
		return standard
	}
	tier := volume.Mul(s.Tier.Rate).Add(count.Mul(s.Tier.Fixed)).Add(s.Tier.MonthlyFee)
	return decimal.Min(standard, tier)
}

// FeeModel estimates processing fees for each provider
type FeeModel struct {
	schedules map[models.ProviderName]FeeSchedule
}

// NewFeeModel creates a fee model from explicit schedules
func NewFeeModel(schedules map[models.ProviderName]FeeSchedule) *FeeModel {
	copied := make(map[models.ProviderName]FeeSchedule, len(schedules))
	for p, s := range schedules {
		copied[p] = s
	}
	return &FeeModel{schedules: copied}
}

// DefaultFeeModel returns the published card-present pricing of the supported providers
func DefaultFeeModel() *FeeModel {
	return NewFeeModel(DefaultSchedules())
}

// DefaultSchedules returns the built-in fee schedules
func DefaultSchedules() map[models.ProviderName]FeeSchedule {
	d := decimal.RequireFromString
	return map[models.ProviderName]FeeSchedule{
		models.ProviderStripe: {
			Rate:  d("0.029"),
			Fixed: d("0.30"),
			Tier: &VolumeTier{
				Name:       "Stripe volume pricing",
				Threshold:  d("80000.00"),
				Rate:       d("0.027"),
				Fixed:      d("0.30"),
				MonthlyFee: d("100.00"),
			},
		},
		models.ProviderSquare: {
			Rate:  d("0.026"),
			Fixed: d("0.15"),
			Tier: &VolumeTier{
				Name:       "Square for Restaurants Plus",
				Threshold:  d("2714.00"),
				Rate:       d("0.023"),
				Fixed:      d("0.10"),
				MonthlyFee: d("29.00"),
			},
		},
		models.ProviderPayPal: {
			Rate:  d("0.0349"),
			Fixed: d("0.49"),
			Tier: &VolumeTier{
				Name:       "PayPal merchant rate",
				Threshold:  d("25000.00"),
				Rate:       d("0.0299"),
				Fixed:      d("0.49"),
				MonthlyFee: d("30.00"),
			},
		},
		models.ProviderRazorpay: {
			Rate:  d("0.02"),
			Fixed: decimal.Zero,
		},
	}
}

// Schedule returns the fee schedule of a provider
func (m *FeeModel) Schedule(provider models.ProviderName) (FeeSchedule, bool) {
	s, ok := m.schedules[provider]
	return s, ok
}

// Fee estimates the fee of a single transaction under standard pricing
func (m *FeeModel) Fee(provider models.ProviderName, amount decimal.Decimal) (decimal.Decimal, error) {
	return m.FeeAtVolume(provider, amount, decimal.Zero)
}

// FeeAtVolume estimates the fee of a single transaction for a merchant processing
// monthlyVolume. Where a volume tier applies the cheaper of the two plans is used.
func (m *FeeModel) FeeAtVolume(provider models.ProviderName, amount, monthlyVolume decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	s, ok := m.schedules[provider]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	fee := s.StandardFee(amount)
	if tierFee, ok := s.TierFee(amount, monthlyVolume); ok && tierFee.LessThan(fee) {
		fee = tierFee
	}

	if ceiling := amount.Mul(maxFeeShare); fee.GreaterThan(ceiling) {
		fee = ceiling
	}
	return fee, nil
}

// TierDiscount returns how much cheaper the provider's tier makes this
// transaction at monthlyVolume. Zero when no tier applies or it is not cheaper.
func (m *FeeModel) TierDiscount(provider models.ProviderName, amount, monthlyVolume decimal.Decimal) decimal.Decimal {
	s, ok := m.schedules[provider]
	if !ok || !amount.IsPositive() {
		return decimal.Zero
	}
	tierFee, ok := s.TierFee(amount, monthlyVolume)
	if !ok {
		return decimal.Zero
	}
	if saving := s.StandardFee(amount).Sub(tierFee); saving.IsPositive() {
		return saving
	}
	return decimal.Zero
}

// MonthlyCost estimates a provider's cost for a month of volume
func (m *FeeModel) MonthlyCost(provider models.ProviderName, volume, count decimal.Decimal) (decimal.Decimal, error) {
	s, ok := m.schedules[provider]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return s.MonthlyCost(volume, count), nil
}

// DescribeTier renders the pricing benefit a provider's volume tier offers
func (m *FeeModel) DescribeTier(provider models.ProviderName) string {
	s, ok := m.schedules[provider]
	if !ok {
		return ""
	}
	if s.Tier == nil {
		return fmt.Sprintf("standard pricing %s%%%s", percent(s.Rate), fixedSuffix(s.Fixed))
	}
	t := s.Tier
	desc := fmt.Sprintf("%s: %s%%%s instead of %s%%%s", t.Name,
		percent(t.Rate), fixedSuffix(t.Fixed), percent(s.Rate), fixedSuffix(s.Fixed))
	if t.MonthlyFee.IsPositive() {
		desc += fmt.Sprintf(", %s monthly", t.MonthlyFee.StringFixed(2))
	}
	return desc
}

// RoundCurrency rounds a monetary value to cents
func RoundCurrency(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

func percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String()
}

func fixedSuffix(fixed decimal.Decimal) string {
	if fixed.IsZero() {
		return ""
	}
	return " + " + fixed.StringFixed(2)
}
