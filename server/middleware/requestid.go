package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/rediskit/logger"
)

// HeaderRequestID carries the request ID in and out.
const HeaderRequestID = "X-Request-Id"

// RequestID injects a unique X-Request-Id header into every request/response
// and stores it in the request context for logger.WithContext.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(logger.FieldRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logger.ContextWith(c.Request.Context(), logger.FieldRequestID, id))
		c.Next()
	}
}
