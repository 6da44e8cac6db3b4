package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/shared/logger"
)

// Recovery turns a panic into the standard retryable INTERNAL_ERROR body.
// If log is nil, it will use a default logger.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.New(nil)
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("Panic recovered",
					"error", err,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"request_id", GetRequestID(c),
					"tenant_id", GetTenantID(c),
					"stack", string(debug.Stack()),
				)

				// The request may have reached the gateway, so clients retry
				// with the same idempotency key.
				c.AbortWithStatusJSON(http.StatusInternalServerError, model.PaymentErrorResponse{
					Code:      "INTERNAL_ERROR",
					Message:   "internal server error",
					Retryable: true,
				})
			}
		}()
		c.Next()
	}
}
