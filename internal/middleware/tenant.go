package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys
const (
	MerchantIDKey = "merchantID"
	RequestIDKey  = "requestID"
)

type contextKey string

const (
	merchantIDCtxKey contextKey = "merchantID"
	requestIDCtxKey  contextKey = "requestID"
)

var merchantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// RequestContext extracts the merchant and request IDs set by the upstream
// gateway and propagates them into the request context
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Istio auth sets tenant_id from the JWT; fall back to the header
		merchantID := c.GetString("tenant_id")
		if merchantID == "" {
			merchantID = c.GetHeader("X-Merchant-ID")
		}
		if !ValidMerchantID(merchantID) {
			merchantID = ""
		}

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		ctx := context.WithValue(c.Request.Context(), merchantIDCtxKey, merchantID)
		ctx = context.WithValue(ctx, requestIDCtxKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Set(MerchantIDKey, merchantID)
		c.Set(RequestIDKey, requestID)

		c.Next()
	}
}

// RequireMerchantID rejects requests that carry no valid merchant ID.
// It must run after RequestContext.
func RequireMerchantID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(MerchantIDKey) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Merchant ID is required",
			})
			return
		}
		c.Next()
	}
}

// ValidMerchantID checks the merchant ID format
func ValidMerchantID(id string) bool {
	return merchantIDPattern.MatchString(id)
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return v
	}
	return ""
}

// GetMerchantID extracts the merchant ID from a context
func GetMerchantID(ctx context.Context) string {
	if v, ok := ctx.Value(merchantIDCtxKey).(string); ok {
		return v
	}
	return ""
}
