package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuditLog represents an audit log entry for an administrative change
type AuditLog struct {
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"requestId"`
	UserID     string        `json:"userId"`
	Method     string        `json:"method"`
	Route      string        `json:"route"`
	Action     string        `json:"action"`
	Resource   string        `json:"resource"`
	ResourceID string        `json:"resourceId,omitempty"`
	StatusCode int           `json:"statusCode"`
	Duration   time.Duration `json:"duration"`
	ClientIP   string        `json:"clientIp"`
	Success    bool          `json:"success"`
}

// AuditMiddleware logs configuration changes made through the admin API.
// Request bodies are never logged since they may carry provider credentials.
func AuditMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	audit := logger.WithField("component", "audit")

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := AuditLog{
			Timestamp:  start.UTC(),
			RequestID:  c.GetString(RequestIDKey),
			UserID:     auditUser(c),
			Method:     c.Request.Method,
			Route:      c.FullPath(),
			StatusCode: c.Writer.Status(),
			Duration:   time.Since(start),
			ClientIP:   c.ClientIP(),
			Success:    c.Writer.Status() < http.StatusBadRequest,
		}
		entry.Action, entry.Resource, entry.ResourceID = adminAction(c)

		fields := logrus.Fields{
			"request_id":  entry.RequestID,
			"user_id":     entry.UserID,
			"action":      entry.Action,
			"resource":    entry.Resource,
			"resource_id": entry.ResourceID,
			"status":      entry.StatusCode,
			"duration_ms": entry.Duration.Milliseconds(),
			"client_ip":   entry.ClientIP,
		}
		if entry.Success {
			audit.WithFields(fields).Info("Admin change applied")
		} else {
			audit.WithFields(fields).Warn("Admin change rejected")
		}
	}
}

func auditUser(c *gin.Context) string {
	if id := c.GetString("user_id"); id != "" {
		return id
	}
	return c.GetHeader("X-User-ID")
}

// adminAction maps an admin route to the action it performs
func adminAction(c *gin.Context) (action, resource, resourceID string) {
	route := strings.TrimPrefix(c.FullPath(), "/api/v1/routing-admin")
	switch {
	case strings.HasPrefix(route, "/providers/"):
		return "update_provider", "provider", c.Param("name")
	case route == "/routing":
		return "update_routing", "routing", ""
	case strings.HasPrefix(route, "/features/"):
		return "update_feature", "feature", c.Param("name")
	case route == "/validate":
		return "validate_config", "config", ""
	case route == "/simulate":
		return "simulate_routing", "routing", ""
	case route == "/backup":
		return "backup_config", "config", c.Query("scope")
	default:
		return strings.ToLower(c.Request.Method), route, ""
	}
}
