package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"payment-routing-service/internal/models"
)

// StripeExecutor charges through Stripe PaymentIntents
type StripeExecutor struct {
	api       *client.API
	accountID string
}

// NewStripeExecutor creates a Stripe executor from provider configuration
func NewStripeExecutor(cfg models.ProviderConfig) (*StripeExecutor, error) {
	if !cfg.SecretKey.IsSet() {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	api := &client.API{}
	api.Init(cfg.SecretKey.Reveal(), nil)

	return &StripeExecutor{
		api:       api,
		accountID: cfg.Setting("account_id"),
	}, nil
}

// Provider returns the provider name
func (e *StripeExecutor) Provider() models.ProviderName {
	return models.ProviderStripe
}

// Charge creates and confirms a PaymentIntent for the payment method in SourceID
func (e *StripeExecutor) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.SourceID),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	if e.accountID != "" {
		params.SetStripeAccount(e.accountID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("merchant_id", req.MerchantID)

	pi, err := e.api.PaymentIntents.New(params)
	if err != nil {
		return nil, e.handleStripeError(err)
	}

	return &ChargeResult{
		Provider:  models.ProviderStripe,
		Reference: pi.ID,
		Status:    e.mapStatus(pi.Status),
		Amount:    fromMinorUnits(pi.Amount),
		Currency:  strings.ToUpper(string(pi.Currency)),
	}, nil
}

// Refund refunds a PaymentIntent, fully when Amount is zero
func (e *StripeExecutor) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
	}
	params.Context = ctx
	if req.Amount.IsPositive() {
		params.Amount = stripe.Int64(minorUnits(req.Amount))
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if e.accountID != "" {
		params.SetStripeAccount(e.accountID)
	}

	r, err := e.api.Refunds.New(params)
	if err != nil {
		return nil, e.handleStripeError(err)
	}

	return &RefundResult{
		Provider: models.ProviderStripe,
		RefundID: r.ID,
		Status:   string(r.Status),
		Amount:   fromMinorUnits(r.Amount),
		Currency: strings.ToUpper(string(r.Currency)),
	}, nil
}

func (e *StripeExecutor) mapStatus(status stripe.PaymentIntentStatus) models.TransactionStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.TransactionCompleted
	case stripe.PaymentIntentStatusCanceled:
		return models.TransactionFailed
	default:
		return models.TransactionPending
	}
}

func (e *StripeExecutor) handleStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &GatewayError{
			Provider:   models.ProviderStripe,
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
			StatusCode: stripeErr.HTTPStatusCode,
			Retryable:  e.isRetryable(stripeErr),
		}
	}
	return &GatewayError{
		Provider:  models.ProviderStripe,
		Code:      "transport_error",
		Message:   err.Error(),
		Retryable: true,
	}
}

func (e *StripeExecutor) isRetryable(err *stripe.Error) bool {
	if err.Type == stripe.ErrorTypeCard {
		return false
	}
	if retryableStatus(err.HTTPStatusCode) {
		return true
	}

	retryableCodes := map[stripe.ErrorCode]bool{
		stripe.ErrorCodeRateLimit:           true,
		stripe.ErrorCodeLockTimeout:         true,
		stripe.ErrorCodeIdempotencyKeyInUse: true,
	}
	return retryableCodes[err.Code]
}
