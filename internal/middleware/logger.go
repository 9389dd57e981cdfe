package middleware

import (
	"time"

	"telehealth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Logger writes one structured line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.LogRequest(c.Request.Method, path, c.ClientIP(), c.Request.UserAgent(), time.Since(start), c.Writer.Status())
	}
}

// Recovery turns a handler panic into a logged 500.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(map[string]interface{}{
			"path":  c.Request.URL.Path,
			"panic": recovered,
		}).Error("Recovered from handler panic")
		c.AbortWithStatus(500)
	})
}
