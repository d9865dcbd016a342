package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/middleware"
	"payment-routing-service/internal/models"
	"payment-routing-service/internal/services"
)

// ProviderSelector proposes providers for charges
type ProviderSelector interface {
	SelectProviderWithStrategy(ctx context.Context, amount decimal.Decimal, merchantID string, strategy models.Strategy) (*models.ProviderSelection, error)
}

// VolumeReader exposes a merchant's volume metrics, alerts and forecast
type VolumeReader interface {
	Track(ctx context.Context, merchantID string, windowDays int) (*models.VolumeMetrics, error)
	CheckThresholds(ctx context.Context, merchantID string, metrics *models.VolumeMetrics) ([]models.VolumeAlert, error)
	Forecast(ctx context.Context, merchantID string, horizonDays int) (*models.VolumeForecast, error)
}

// Charger executes charges along the routed provider chain
type Charger interface {
	ChargeWithFallback(ctx context.Context, in services.ChargeInput) (*services.ChargeOutcome, error)
}

// RoutingHandler handles routing HTTP requests
type RoutingHandler struct {
	selector ProviderSelector
	volume   VolumeReader
	charger  Charger
}

// NewRoutingHandler creates a new routing handler
func NewRoutingHandler(selector ProviderSelector, volume VolumeReader, charger Charger) *RoutingHandler {
	return &RoutingHandler{
		selector: selector,
		volume:   volume,
		charger:  charger,
	}
}

// SelectProvider handles POST /api/v1/routing/select
func (h *RoutingHandler) SelectProvider(c *gin.Context) {
	var req models.SelectProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	if !authorizeMerchant(c, req.MerchantID) {
		return
	}
	strategy, ok := parseOptionalStrategy(c, req.Strategy)
	if !ok {
		return
	}

	selection, err := h.selector.SelectProviderWithStrategy(c.Request.Context(), req.Amount, req.MerchantID, strategy)
	if err != nil {
		respondRoutingError(c, err)
		return
	}

	c.JSON(http.StatusOK, selection)
}

// Charge handles POST /api/v1/routing/charge
func (h *RoutingHandler) Charge(c *gin.Context) {
	var req models.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	if !authorizeMerchant(c, req.MerchantID) {
		return
	}

	sources := make(map[models.ProviderName]string, len(req.Sources))
	for name, token := range req.Sources {
		provider, known := models.ParseProviderName(name)
		if !known {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "Invalid request",
				Message: "unknown provider " + name,
			})
			return
		}
		sources[provider] = token
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = c.GetHeader("Idempotency-Key")
	}

	outcome, err := h.charger.ChargeWithFallback(c.Request.Context(), services.ChargeInput{
		MerchantID:     req.MerchantID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
		IdempotencyKey: idempotencyKey,
		Sources:        sources,
		Metadata:       req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAllProvidersFailed), errors.Is(err, services.ErrNoPaymentSource):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Charge failed", "message": err.Error(), "outcome": outcome})
		case outcome != nil:
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Charge declined", "message": err.Error(), "outcome": outcome})
		default:
			respondRoutingError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// GetVolume handles GET /api/v1/routing/merchants/:merchantId/volume
func (h *RoutingHandler) GetVolume(c *gin.Context) {
	merchantID, ok := merchantParam(c)
	if !ok {
		return
	}
	windowDays, ok := intQuery(c, "windowDays", models.DefaultWindowDays)
	if !ok {
		return
	}

	metrics, err := h.volume.Track(c.Request.Context(), merchantID, windowDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to track volume",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// GetAlerts handles GET /api/v1/routing/merchants/:merchantId/alerts
func (h *RoutingHandler) GetAlerts(c *gin.Context) {
	merchantID, ok := merchantParam(c)
	if !ok {
		return
	}

	alerts, err := h.volume.CheckThresholds(c.Request.Context(), merchantID, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to check volume thresholds",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"merchantId": merchantID,
		"alerts":     alerts,
	})
}

// GetForecast handles GET /api/v1/routing/merchants/:merchantId/forecast
func (h *RoutingHandler) GetForecast(c *gin.Context) {
	merchantID, ok := merchantParam(c)
	if !ok {
		return
	}
	horizonDays, ok := intQuery(c, "horizonDays", models.DefaultWindowDays)
	if !ok {
		return
	}

	forecast, err := h.volume.Forecast(c.Request.Context(), merchantID, horizonDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to forecast volume",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, forecast)
}

func respondRoutingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidAmount), errors.Is(err, models.ErrUnknownStrategy):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrNoProviders):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "No provider available",
			Message: err.Error(),
			Code:    "NO_PROVIDERS",
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Routing failed",
			Message: err.Error(),
		})
	}
}

func parseOptionalStrategy(c *gin.Context, name string) (models.Strategy, bool) {
	if name == "" {
		return "", true
	}
	strategy, err := models.ParseStrategy(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid strategy",
			Message: err.Error(),
		})
		return "", false
	}
	return strategy, true
}

func merchantParam(c *gin.Context) (string, bool) {
	merchantID := c.Param("merchantId")
	if !middleware.ValidMerchantID(merchantID) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid merchant ID",
			Message: "Merchant ID must be 1-100 letters, digits, '-' or '_'",
		})
		return "", false
	}
	if !authorizeMerchant(c, merchantID) {
		return "", false
	}
	return merchantID, true
}

// authorizeMerchant rejects requests for a merchant other than the one
// the request was authenticated for
func authorizeMerchant(c *gin.Context, merchantID string) bool {
	if c.GetString(middleware.MerchantIDKey) != merchantID {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "Forbidden",
			Message: "Merchant ID does not match the authenticated merchant",
			Code:    "MERCHANT_MISMATCH",
		})
		return false
	}
	return true
}

func intQuery(c *gin.Context, key string, defaultValue int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > 365 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid " + key,
			Message: key + " must be a whole number of days between 1 and 365",
		})
		return 0, false
	}
	return v, true
}
