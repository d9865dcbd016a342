package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"payment-routing-service/internal/models"
)

// Option customizes an HTTP based executor
type Option func(*restOptions)

type restOptions struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL points the executor at a different API host
func WithBaseURL(url string) Option {
	return func(o *restOptions) { o.baseURL = url }
}

// WithHTTPClient replaces the executor's HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(o *restOptions) { o.httpClient = c }
}

func applyOptions(cfg models.ProviderConfig, sandboxURL, productionURL string, opts []Option) restOptions {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	o := restOptions{
		baseURL:    productionURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.IsSandbox() {
		o.baseURL = sandboxURL
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// restCall sends a JSON request and decodes a JSON response. Non-2xx
// responses become a GatewayError carrying the provider's error code.
func restCall(ctx context.Context, client *http.Client, provider models.ProviderName, method, url string, headers map[string]string, body, out interface{}, decodeErr func([]byte) (string, string)) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", provider, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &GatewayError{Provider: provider, Code: "transport_error", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, msg := "http_" + fmt.Sprint(resp.StatusCode), resp.Status
		if decodeErr != nil {
			if c, m := decodeErr(respBody); c != "" {
				code, msg = c, m
			}
		}
		return &GatewayError{
			Provider:   provider,
			Code:       code,
			Message:    msg,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}
