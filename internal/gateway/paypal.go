package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"payment-routing-service/internal/models"
)

const (
	paypalSandboxURL    = "https://api-m.sandbox.paypal.com"
	paypalProductionURL = "https://api-m.paypal.com"
)

// PayPalExecutor captures approved PayPal orders
type PayPalExecutor struct {
	clientID     string
	clientSecret string
	merchantID   string
	opts         restOptions

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// NewPayPalExecutor creates a PayPal executor from provider configuration
func NewPayPalExecutor(cfg models.ProviderConfig, opts ...Option) (*PayPalExecutor, error) {
	if !cfg.APIKey.IsSet() || !cfg.SecretKey.IsSet() {
		return nil, fmt.Errorf("paypal client ID and secret are required")
	}

	return &PayPalExecutor{
		clientID:     cfg.APIKey.Reveal(),
		clientSecret: cfg.SecretKey.Reveal(),
		merchantID:   cfg.Setting("merchant_id"),
		opts:         applyOptions(cfg, paypalSandboxURL, paypalProductionURL, opts),
	}, nil
}

// Provider returns the provider name
func (e *PayPalExecutor) Provider() models.ProviderName {
	return models.ProviderPayPal
}

// getAccessToken obtains an OAuth2 access token, reusing a cached one while valid
func (e *PayPalExecutor) getAccessToken(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.accessToken != "" && time.Now().Before(e.tokenExpiry) {
		return e.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(e.clientID + ":" + e.clientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.opts.httpClient.Do(req)
	if err != nil {
		return "", &GatewayError{Provider: models.ProviderPayPal, Code: "transport_error", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &GatewayError{
			Provider:   models.ProviderPayPal,
			Code:       "authentication_failed",
			Message:    "failed to get access token: " + resp.Status,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	e.accessToken = tokenResp.AccessToken
	e.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return e.accessToken, nil
}

// Charge captures the approved order in SourceID
func (e *PayPalExecutor) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	var resp struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string       `json:"id"`
					Status string       `json:"status"`
					Amount paypalAmount `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := e.call(ctx, "/v2/checkout/orders/"+req.SourceID+"/capture", req.IdempotencyKey, map[string]interface{}{}, &resp); err != nil {
		return nil, err
	}

	result := &ChargeResult{
		Provider:  models.ProviderPayPal,
		Reference: resp.ID,
		Status:    e.mapStatus(resp.Status),
		Amount:    req.Amount,
		Currency:  strings.ToUpper(req.Currency),
	}
	// Refunds are issued against the capture, not the order
	if len(resp.PurchaseUnits) > 0 && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		capture := resp.PurchaseUnits[0].Payments.Captures[0]
		result.Reference = capture.ID
		if v, err := decimal.NewFromString(capture.Amount.Value); err == nil {
			result.Amount = v
			result.Currency = capture.Amount.CurrencyCode
		}
	}
	return result, nil
}

// Refund refunds a capture, fully when Amount is zero
func (e *PayPalExecutor) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	body := map[string]interface{}{}
	if req.Reason != "" {
		body["note_to_payer"] = req.Reason
	}
	if req.Amount.IsPositive() {
		body["amount"] = paypalAmount{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        req.Amount.StringFixed(2),
		}
	}

	var resp struct {
		ID     string       `json:"id"`
		Status string       `json:"status"`
		Amount paypalAmount `json:"amount"`
	}
	if err := e.call(ctx, "/v2/payments/captures/"+req.Reference+"/refund", req.IdempotencyKey, body, &resp); err != nil {
		return nil, err
	}

	amount, _ := decimal.NewFromString(resp.Amount.Value)
	return &RefundResult{
		Provider: models.ProviderPayPal,
		RefundID: resp.ID,
		Status:   resp.Status,
		Amount:   amount,
		Currency: resp.Amount.CurrencyCode,
	}, nil
}

func (e *PayPalExecutor) call(ctx context.Context, path, idempotencyKey string, body, out interface{}) error {
	token, err := e.getAccessToken(ctx)
	if err != nil {
		return err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	if idempotencyKey != "" {
		headers["PayPal-Request-Id"] = idempotencyKey
	}
	return restCall(ctx, e.opts.httpClient, models.ProviderPayPal, http.MethodPost, e.opts.baseURL+path, headers, body, out, decodePayPalError)
}

func (e *PayPalExecutor) mapStatus(status string) models.TransactionStatus {
	switch status {
	case "COMPLETED":
		return models.TransactionCompleted
	case "VOIDED", "DECLINED":
		return models.TransactionFailed
	default:
		return models.TransactionPending
	}
}

func decodePayPalError(body []byte) (string, string) {
	var resp struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Name == "" {
		return "", ""
	}
	if len(resp.Details) > 0 && resp.Details[0].Issue != "" {
		return resp.Details[0].Issue, resp.Message
	}
	return resp.Name, resp.Message
}
