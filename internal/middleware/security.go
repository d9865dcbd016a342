package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"payment-routing-service/internal/models"
)

// SecuritySource exposes the current security configuration
type SecuritySource interface {
	Security() models.SecurityConfig
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Routing decisions and provider settings must not be cached
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
		c.Header("Pragma", "no-cache")

		c.Next()
	}
}

// CORS applies the allowed origins of the live security configuration, so
// origin changes take effect without a restart
func CORS(source SecuritySource) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return OriginAllowed(source.Security().AllowedOrigins, origin)
		},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Authorization",
			"Content-Type",
			"X-Merchant-ID",
			"X-Request-ID",
		},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// OriginAllowed matches an origin against exact entries, "*" and "*.domain" wildcards
func OriginAllowed(allowed []string, origin string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
		if strings.HasPrefix(candidate, "*.") && strings.HasSuffix(origin, strings.TrimPrefix(candidate, "*")) {
			return true
		}
	}
	return false
}

// RequireJSON rejects write requests that do not carry a JSON body
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			if c.Request.ContentLength != 0 && !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"error":   "Unsupported media type",
					"message": "Content-Type must be application/json",
				})
				return
			}
		}
		c.Next()
	}
}
