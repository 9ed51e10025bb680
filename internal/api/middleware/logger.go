package middleware

import (
	"time"

	"codform/internal/logger"

	"github.com/gin-gonic/gin"
)

// Logger writes one structured line per request.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		line := log.With(
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
		switch {
		case status >= 500:
			line.Error("request failed: %s", c.Errors.String())
		case status >= 400:
			line.Warn("request rejected")
		default:
			line.Info("request served")
		}
	}
}
