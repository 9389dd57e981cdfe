package middleware

import (
	"telehealth/internal/utils"
	"telehealth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AdminOnly rejects every caller without the admin role and records the
// attempt.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}
		if !id.IsAdmin() {
			logger.LogSecurityEvent("admin_access_denied", id.UserID, c.ClientIP(), map[string]interface{}{
				"path": c.Request.URL.Path,
				"role": id.Role,
			})
			utils.ForbiddenResponse(c, "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminActivityLogger records each admin request after it is served.
func AdminActivityLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		id, ok := GetIdentity(c)
		if !ok {
			return
		}
		logger.LogUserAction(id.UserID, "admin_request", map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
			"ip":     c.ClientIP(),
		})
	}
}

// AdminSecurityHeaders keeps admin responses out of frames and caches.
func AdminSecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
