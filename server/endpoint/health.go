package endpoint

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/observability"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Health returns a handler that reports service health including component
// statuses. An unhealthy service answers 503.
func Health(serviceName, version string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := observability.NewServiceHealth(serviceName, version)
		if checker != nil {
			for _, h := range checker(c.Request.Context()) {
				sh.AddComponent(h)
			}
		}

		httpStatus := http.StatusOK
		if sh.Status == component.StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, sh)
	}
}
