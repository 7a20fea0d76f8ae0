package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/errors"
	"github.com/kbukum/rediskit/logger"
)

// Recovery recovers from handler panics, logs the stack and answers with a
// 500 error body.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithContext(c.Request.Context()).Error("Panic recovered", map[string]interface{}{
					logger.FieldError: fmt.Sprintf("%v", r),
					"stack":           string(debug.Stack()),
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
				})
				appErr := errors.Internal(fmt.Errorf("panic: %v", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToResponse())
			}
		}()
		c.Next()
	}
}
