package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"payment-routing-service/internal/config"
	"payment-routing-service/internal/models"
)

// Simulator previews routing decisions
type Simulator interface {
	Simulate(ctx context.Context, merchantID string, strategy models.Strategy, amount decimal.Decimal) (*models.RoutingDecision, error)
}

// ExecutorCache drops cached provider clients after their configuration changes
type ExecutorCache interface {
	Invalidate(provider models.ProviderName)
}

// ConfigHandler handles routing administration requests
type ConfigHandler struct {
	manager   *config.Manager
	simulator Simulator
	executors ExecutorCache
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(manager *config.Manager, simulator Simulator, executors ExecutorCache) *ConfigHandler {
	return &ConfigHandler{
		manager:   manager,
		simulator: simulator,
		executors: executors,
	}
}

// ==================== Providers ====================

// ListProviders handles GET /api/v1/routing-admin/providers
func (h *ConfigHandler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.manager.Providers(),
	})
}

// GetProvider handles GET /api/v1/routing-admin/providers/:name
func (h *ConfigHandler) GetProvider(c *gin.Context) {
	name, ok := providerParam(c)
	if !ok {
		return
	}

	provider, found := h.manager.GetProvider(name)
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Provider not found",
			Message: "Provider " + string(name) + " is not configured",
		})
		return
	}

	c.JSON(http.StatusOK, provider)
}

// UpdateProvider handles PUT /api/v1/routing-admin/providers/:name
func (h *ConfigHandler) UpdateProvider(c *gin.Context) {
	name, ok := providerParam(c)
	if !ok {
		return
	}

	var update models.ProviderUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	provider, err := h.manager.UpdateProvider(name, update)
	if err != nil {
		respondConfigError(c, err)
		return
	}
	if h.executors != nil {
		h.executors.Invalidate(name)
	}

	c.JSON(http.StatusOK, provider)
}

// ==================== Routing ====================

// GetRouting handles GET /api/v1/routing-admin/routing
func (h *ConfigHandler) GetRouting(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Routing())
}

// UpdateRouting handles PUT /api/v1/routing-admin/routing
func (h *ConfigHandler) UpdateRouting(c *gin.Context) {
	var update models.RoutingUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	routing, err := h.manager.UpdateRouting(update)
	if err != nil {
		respondConfigError(c, err)
		return
	}

	c.JSON(http.StatusOK, routing)
}

// ==================== Features & Security ====================

// GetFeatures handles GET /api/v1/routing-admin/features
func (h *ConfigHandler) GetFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Features().AsMap())
}

// UpdateFeature handles PUT /api/v1/routing-admin/features/:name
func (h *ConfigHandler) UpdateFeature(c *gin.Context) {
	var req models.UpdateFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	if err := h.manager.UpdateFeature(c.Param("name"), *req.Enabled); err != nil {
		respondConfigError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.manager.Features().AsMap())
}

// GetSecurity handles GET /api/v1/routing-admin/security
func (h *ConfigHandler) GetSecurity(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Security())
}

// ==================== Operations ====================

// Validate handles POST /api/v1/routing-admin/validate
func (h *ConfigHandler) Validate(c *gin.Context) {
	result := h.manager.Validate()
	c.JSON(http.StatusOK, models.ValidationResponse{
		Valid:  result.Valid,
		Issues: result.Issues,
	})
}

// Simulate handles POST /api/v1/routing-admin/simulate
func (h *ConfigHandler) Simulate(c *gin.Context) {
	var req models.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	strategy, ok := parseOptionalStrategy(c, req.Strategy)
	if !ok {
		return
	}

	decision, err := h.simulator.Simulate(c.Request.Context(), req.MerchantID, strategy, req.Amount)
	if err != nil {
		respondRoutingError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// Backup handles POST /api/v1/routing-admin/backup?scope=all
func (h *ConfigHandler) Backup(c *gin.Context) {
	scope, err := config.ParseScope(c.DefaultQuery("scope", string(config.ScopeAll)))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid scope",
			Message: err.Error(),
		})
		return
	}

	if err := h.manager.Save(scope); err != nil {
		respondConfigError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Configuration saved",
		"scope":   scope,
	})
}

func respondConfigError(c *gin.Context, err error) {
	var cfgErr *config.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "Invalid configuration",
			Message: "The change would leave the configuration invalid",
			Code:    "VALIDATION_FAILED",
			Issues:  cfgErr.Issues,
		})
	case errors.Is(err, config.ErrProviderNotConfigured), errors.Is(err, config.ErrUnknownFeature):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Not found",
			Message: err.Error(),
		})
	case errors.Is(err, config.ErrNoStore):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "Persistence disabled",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to update configuration",
			Message: err.Error(),
		})
	}
}

func providerParam(c *gin.Context) (models.ProviderName, bool) {
	name, known := models.ParseProviderName(c.Param("name"))
	if !known {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Provider not found",
			Message: "Unknown provider " + c.Param("name"),
		})
		return "", false
	}
	return name, true
}
