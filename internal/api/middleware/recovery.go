package middleware

import (
	"errors"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"

	"codform/internal/logger"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a JSON 500. Panics caused by the
// client hanging up are dropped silently.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && clientGone(err) {
			c.Abort()
			return
		}

		line := log.With("method", c.Request.Method, "path", c.Request.URL.Path)
		if gin.IsDebugging() {
			line.Error("panic recovered: %v\n%s", recovered, debug.Stack())
		} else {
			line.Error("panic recovered: %v", recovered)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

func clientGone(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if !errors.As(opErr.Err, &sysErr) {
		return false
	}
	msg := strings.ToLower(sysErr.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
