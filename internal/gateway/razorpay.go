package gateway

import (
	"context"
	"fmt"
	"strings"

	razorpayLib "github.com/razorpay/razorpay-go"

	"payment-routing-service/internal/models"
)

// RazorpayExecutor captures authorized Razorpay payments
type RazorpayExecutor struct {
	client *razorpayLib.Client
}

// NewRazorpayExecutor creates a Razorpay executor from provider configuration
func NewRazorpayExecutor(cfg models.ProviderConfig) (*RazorpayExecutor, error) {
	if !cfg.APIKey.IsSet() || !cfg.SecretKey.IsSet() {
		return nil, fmt.Errorf("razorpay key ID and key secret are required")
	}

	return &RazorpayExecutor{
		client: razorpayLib.NewClient(cfg.APIKey.Reveal(), cfg.SecretKey.Reveal()),
	}, nil
}

// Provider returns the provider name
func (e *RazorpayExecutor) Provider() models.ProviderName {
	return models.ProviderRazorpay
}

// Charge captures the authorized payment identified by SourceID.
// The SDK does not take a context, so cancellation is checked up front.
func (e *RazorpayExecutor) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	payment, err := e.client.Payment.Capture(req.SourceID, int(minorUnits(req.Amount)), map[string]interface{}{
		"currency": currency,
	}, nil)
	if err != nil {
		return nil, e.handleRazorpayError(err)
	}

	id, _ := payment["id"].(string)
	status, _ := payment["status"].(string)
	amount, _ := payment["amount"].(float64)

	return &ChargeResult{
		Provider:  models.ProviderRazorpay,
		Reference: id,
		Status:    e.mapStatus(status),
		Amount:    fromMinorUnits(int64(amount)),
		Currency:  currency,
	}, nil
}

// Refund refunds a captured payment, fully when Amount is zero
func (e *RazorpayExecutor) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]interface{}{}
	if req.Reason != "" {
		data["notes"] = map[string]string{"reason": req.Reason}
	}
	if req.IdempotencyKey != "" {
		data["receipt"] = req.IdempotencyKey
	}

	var amountPaise int
	if req.Amount.IsPositive() {
		amountPaise = int(minorUnits(req.Amount))
		data["amount"] = amountPaise
	}

	resp, err := e.client.Payment.Refund(req.Reference, amountPaise, data, nil)
	if err != nil {
		return nil, e.handleRazorpayError(err)
	}

	refundID, _ := resp["id"].(string)
	status, _ := resp["status"].(string)
	amount, _ := resp["amount"].(float64)

	return &RefundResult{
		Provider: models.ProviderRazorpay,
		RefundID: refundID,
		Status:   status,
		Amount:   fromMinorUnits(int64(amount)),
		Currency: strings.ToUpper(req.Currency),
	}, nil
}

func (e *RazorpayExecutor) mapStatus(status string) models.TransactionStatus {
	switch status {
	case "captured":
		return models.TransactionCompleted
	case "failed":
		return models.TransactionFailed
	case "refunded":
		return models.TransactionRefunded
	default:
		return models.TransactionPending
	}
}

// handleRazorpayError classifies SDK errors. The SDK surfaces API errors as
// plain errors, so only descriptions naming a bad request are treated as final.
func (e *RazorpayExecutor) handleRazorpayError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	final := strings.Contains(lower, "bad_request") || strings.Contains(lower, "invalid")
	return NewGatewayError(models.ProviderRazorpay, "razorpay_error", msg, !final)
}
