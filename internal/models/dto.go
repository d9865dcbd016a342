package models

import "github.com/shopspring/decimal"

// SelectProviderRequest represents a request to pick a provider for a charge
type SelectProviderRequest struct {
	MerchantID string          `json:"merchantId" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Strategy   string          `json:"strategy,omitempty"`
}

// ChargeRequest represents a request to charge through the routed provider chain
type ChargeRequest struct {
	MerchantID     string            `json:"merchantId" binding:"required"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency" binding:"required,len=3"`
	Description    string            `json:"description,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	Sources        map[string]string `json:"sources" binding:"required"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SimulateRequest represents an operator request to preview a routing decision
type SimulateRequest struct {
	MerchantID string          `json:"merchantId" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Strategy   string          `json:"strategy,omitempty"`
}

// UpdateFeatureRequest toggles a feature flag
type UpdateFeatureRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ValidationResponse reports the result of validating the live configuration
type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Code    string   `json:"code,omitempty"`
	Issues  []string `json:"issues,omitempty"`
}
