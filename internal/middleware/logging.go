package middleware

import (
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("service", "HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
		}
		if userID, ok := UserID(c); ok {
			kv = append(kv, "user_id", userID)
		}
		switch {
		case status >= 500:
			log.Error("Request failed", kv...)
		case status >= 400:
			log.Warn("Request rejected", kv...)
		default:
			log.Debug("Request served", kv...)
		}
	}
}
