package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/logger"
)

var probePaths = map[string]bool{
	"/health": true,
	"/alive":  true,
	"/ready":  true,
}

// RequestLogger logs every request with method, path, status code and
// duration. Probe paths are skipped.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := map[string]interface{}{
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             status,
			logger.FieldDuration: latency.Milliseconds(),
			"client":             c.ClientIP(),
		}
		if latency > 500*time.Millisecond {
			fields["slow"] = true
		}
		logByStatus(log.WithContext(c.Request.Context()), fields, status)
	}
}

func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("Request completed", fields)
	case status >= 400:
		log.Warn("Request completed", fields)
	default:
		log.Debug("Request completed", fields)
	}
}
