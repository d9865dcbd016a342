package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"payment-routing-service/internal/models"
)

// Executor runs charges against a single payment provider.
// The routing engine never calls it; the charge service does.
type Executor interface {
	// Provider returns the provider this executor talks to
	Provider() models.ProviderName

	// Charge captures funds for an already tokenized payment source
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// Refund returns funds for a previous charge
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}

// ChargeRequest represents a request to charge a payment source
type ChargeRequest struct {
	MerchantID string
	Amount     decimal.Decimal
	Currency   string
	// SourceID is the provider token for the payment source: a Stripe payment
	// method, Square card nonce, PayPal approved order or Razorpay authorized payment
	SourceID       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// ChargeResult represents the result of a charge
type ChargeResult struct {
	Provider  models.ProviderName      `json:"provider"`
	Reference string                   `json:"reference"`
	Status    models.TransactionStatus `json:"status"`
	Amount    decimal.Decimal          `json:"amount"`
	Currency  string                   `json:"currency"`
}

// RefundRequest represents a request to refund a charge
type RefundRequest struct {
	Reference      string
	Amount         decimal.Decimal
	Currency       string
	Reason         string
	IdempotencyKey string
}

// RefundResult represents the result of a refund
type RefundResult struct {
	Provider models.ProviderName `json:"provider"`
	RefundID string              `json:"refundId"`
	Status   string              `json:"status"`
	Amount   decimal.Decimal     `json:"amount"`
	Currency string              `json:"currency"`
}

// GatewayError represents an error returned by a payment provider
type GatewayError struct {
	Provider   models.ProviderName `json:"provider"`
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	StatusCode int                 `json:"statusCode,omitempty"`
	Retryable  bool                `json:"retryable"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

// NewGatewayError creates a new gateway error
func NewGatewayError(provider models.ProviderName, code, message string, retryable bool) *GatewayError {
	return &GatewayError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}
}

// IsRetryable reports whether a failed charge may be attempted on another provider.
// Declines are final; transport failures and provider outages are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return !errors.Is(err, context.Canceled)
}

// retryableStatus reports whether an HTTP status from a provider API is transient
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// minorUnits converts an amount to the provider's integer minor currency unit
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromMinorUnits converts an integer minor currency amount back to a decimal
func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
