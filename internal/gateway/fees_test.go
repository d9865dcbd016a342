package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-routing-service/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ===== Fee Tests =====

func TestFee_RejectsNonPositiveAmount(t *testing.T) {
	fees := DefaultFeeModel()

	for _, amount := range []string{"0", "-5", "-0.01"} {
		_, err := fees.Fee(models.ProviderStripe, d(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
}

func TestFee_UnknownProvider(t *testing.T) {
	_, err := DefaultFeeModel().Fee(models.ProviderName("adyen"), d("10"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestFee_StandardPricing(t *testing.T) {
	fees := DefaultFeeModel()

	tests := []struct {
		provider models.ProviderName
		amount   string
		want     string
	}{
		{models.ProviderStripe, "100", "3.20"},
		{models.ProviderSquare, "100", "2.75"},
		{models.ProviderPayPal, "100", "3.98"},
		{models.ProviderRazorpay, "100", "2.00"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			fee, err := fees.Fee(tt.provider, d(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.want, RoundCurrency(fee).StringFixed(2))
		})
	}
}

func TestFee_StaysBetweenZeroAndAmount(t *testing.T) {
	fees := DefaultFeeModel()
	amounts := []string{"0.01", "0.10", "0.50", "1", "12.34", "250", "10000"}
	volumes := []string{"0", "2714", "50000", "1000000"}

	for _, p := range models.AllProviders() {
		for _, a := range amounts {
			for _, v := range volumes {
				fee, err := fees.FeeAtVolume(p, d(a), d(v))
				require.NoError(t, err)
				assert.True(t, fee.IsPositive(), "%s fee for %s at %s must be positive", p, a, v)
				assert.True(t, fee.LessThan(d(a)), "%s fee for %s at %s must be below the amount", p, a, v)
			}
		}
	}
}

func TestFeeAtVolume_ChoosesCheaperPlan(t *testing.T) {
	fees := DefaultFeeModel()

	// Below the tier threshold only standard pricing applies
	fee, err := fees.FeeAtVolume(models.ProviderSquare, d("50"), d("2000"))
	require.NoError(t, err)
	assert.Equal(t, "1.45", RoundCurrency(fee).StringFixed(2))

	// Just over the threshold the apportioned monthly charge outweighs the lower rate
	fee, err = fees.FeeAtVolume(models.ProviderSquare, d("50"), d("3000"))
	require.NoError(t, err)
	assert.Equal(t, "1.45", RoundCurrency(fee).StringFixed(2))

	// At high volume the tier wins
	fee, err = fees.FeeAtVolume(models.ProviderSquare, d("50"), d("30000"))
	require.NoError(t, err)
	assert.Equal(t, "1.30", RoundCurrency(fee).StringFixed(2))
}

func TestFeeAtVolume_NeverAboveStandard(t *testing.T) {
	fees := DefaultFeeModel()
	for _, p := range models.AllProviders() {
		standard, err := fees.Fee(p, d("80"))
		require.NoError(t, err)
		for _, v := range []string{"1000", "30000", "90000", "500000"} {
			fee, err := fees.FeeAtVolume(p, d("80"), d(v))
			require.NoError(t, err)
			assert.True(t, fee.LessThanOrEqual(standard), "%s at %s", p, v)
		}
	}
}

func TestFee_CustomSchedules(t *testing.T) {
	fees := NewFeeModel(map[models.ProviderName]FeeSchedule{
		models.ProviderStripe: {Rate: d("0.014"), Fixed: d("0.20")},
		models.ProviderSquare: {Rate: d("0.0175")},
	})

	a, err := fees.Fee(models.ProviderStripe, d("100"))
	require.NoError(t, err)
	b, err := fees.Fee(models.ProviderSquare, d("100"))
	require.NoError(t, err)

	assert.Equal(t, "1.60", RoundCurrency(a).StringFixed(2))
	assert.Equal(t, "1.75", RoundCurrency(b).StringFixed(2))
}

// ===== Tier Tests =====

func TestTierDiscount(t *testing.T) {
	fees := DefaultFeeModel()

	assert.True(t, fees.TierDiscount(models.ProviderSquare, d("50"), d("2000")).IsZero())
	assert.True(t, fees.TierDiscount(models.ProviderRazorpay, d("50"), d("1000000")).IsZero())

	discount := fees.TierDiscount(models.ProviderSquare, d("50"), d("30000"))
	assert.Equal(t, "0.15", discount.Round(2).StringFixed(2))
}

func TestMonthlyCost(t *testing.T) {
	fees := DefaultFeeModel()

	cost, err := fees.MonthlyCost(models.ProviderSquare, d("30000"), d("600"))
	require.NoError(t, err)
	assert.Equal(t, "779.00", cost.StringFixed(2))

	// Below the threshold the tier is not offered
	cost, err = fees.MonthlyCost(models.ProviderSquare, d("2000"), d("40"))
	require.NoError(t, err)
	assert.Equal(t, "58.00", cost.StringFixed(2))

	_, err = fees.MonthlyCost(models.ProviderName("adyen"), d("1"), d("1"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestDescribeTier(t *testing.T) {
	fees := DefaultFeeModel()

	desc := fees.DescribeTier(models.ProviderSquare)
	assert.Contains(t, desc, "Square for Restaurants Plus")
	assert.Contains(t, desc, "2.3%")
	assert.Contains(t, desc, "29.00 monthly")

	assert.Contains(t, fees.DescribeTier(models.ProviderRazorpay), "standard pricing 2%")
	assert.Empty(t, fees.DescribeTier(models.ProviderName("adyen")))
}
