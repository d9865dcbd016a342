package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"payment-routing-service/internal/models"
)

const (
	squareSandboxURL    = "https://connect.squareupsandbox.com"
	squareProductionURL = "https://connect.squareup.com"
	squareAPIVersion    = "2024-01-18"
)

// SquareExecutor charges through the Square Payments API
type SquareExecutor struct {
	accessToken string
	locationID  string
	opts        restOptions
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squarePayment struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
}

type squareRefund struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
}

// NewSquareExecutor creates a Square executor from provider configuration
func NewSquareExecutor(cfg models.ProviderConfig, opts ...Option) (*SquareExecutor, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("square access token is required")
	}
	locationID := cfg.Setting("location_id")
	if locationID == "" {
		return nil, fmt.Errorf("square location_id is required")
	}

	return &SquareExecutor{
		accessToken: cfg.APIKey.Reveal(),
		locationID:  locationID,
		opts:        applyOptions(cfg, squareSandboxURL, squareProductionURL, opts),
	}, nil
}

// Provider returns the provider name
func (e *SquareExecutor) Provider() models.ProviderName {
	return models.ProviderSquare
}

// Charge creates a completed payment for the card nonce in SourceID
func (e *SquareExecutor) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	body := map[string]interface{}{
		"source_id":       req.SourceID,
		"idempotency_key": e.idempotencyKey(req.IdempotencyKey),
		"amount_money": squareMoney{
			Amount:   minorUnits(req.Amount),
			Currency: strings.ToUpper(req.Currency),
		},
		"location_id":  e.locationID,
		"autocomplete": true,
		"reference_id": req.MerchantID,
	}
	if req.Description != "" {
		body["note"] = req.Description
	}

	var resp struct {
		Payment squarePayment `json:"payment"`
	}
	if err := e.call(ctx, http.MethodPost, "/v2/payments", body, &resp); err != nil {
		return nil, err
	}

	return &ChargeResult{
		Provider:  models.ProviderSquare,
		Reference: resp.Payment.ID,
		Status:    e.mapStatus(resp.Payment.Status),
		Amount:    fromMinorUnits(resp.Payment.AmountMoney.Amount),
		Currency:  resp.Payment.AmountMoney.Currency,
	}, nil
}

// Refund refunds a payment. Square requires an explicit amount.
func (e *SquareExecutor) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if !req.Amount.IsPositive() {
		return nil, NewGatewayError(models.ProviderSquare, "invalid_amount", "square refunds require an amount", false)
	}

	body := map[string]interface{}{
		"idempotency_key": e.idempotencyKey(req.IdempotencyKey),
		"payment_id":      req.Reference,
		"amount_money": squareMoney{
			Amount:   minorUnits(req.Amount),
			Currency: strings.ToUpper(req.Currency),
		},
	}
	if req.Reason != "" {
		body["reason"] = req.Reason
	}

	var resp struct {
		Refund squareRefund `json:"refund"`
	}
	if err := e.call(ctx, http.MethodPost, "/v2/refunds", body, &resp); err != nil {
		return nil, err
	}

	return &RefundResult{
		Provider: models.ProviderSquare,
		RefundID: resp.Refund.ID,
		Status:   resp.Refund.Status,
		Amount:   fromMinorUnits(resp.Refund.AmountMoney.Amount),
		Currency: resp.Refund.AmountMoney.Currency,
	}, nil
}

func (e *SquareExecutor) call(ctx context.Context, method, path string, body, out interface{}) error {
	headers := map[string]string{
		"Authorization":  "Bearer " + e.accessToken,
		"Square-Version": squareAPIVersion,
	}
	return restCall(ctx, e.opts.httpClient, models.ProviderSquare, method, e.opts.baseURL+path, headers, body, out, decodeSquareError)
}

func (e *SquareExecutor) idempotencyKey(key string) string {
	if key != "" {
		return key
	}
	return uuid.New().String()
}

func (e *SquareExecutor) mapStatus(status string) models.TransactionStatus {
	switch status {
	case "COMPLETED":
		return models.TransactionCompleted
	case "FAILED", "CANCELED":
		return models.TransactionFailed
	default:
		return models.TransactionPending
	}
}

func decodeSquareError(body []byte) (string, string) {
	var resp struct {
		Errors []struct {
			Category string `json:"category"`
			Code     string `json:"code"`
			Detail   string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return "", ""
	}
	return resp.Errors[0].Code, resp.Errors[0].Detail
}
