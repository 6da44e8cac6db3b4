package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
)

const (
	RateLimitLimit     = "X-RateLimit-Limit"
	RateLimitRemaining = "X-RateLimit-Remaining"
	RetryAfter         = "Retry-After"
)

// RateLimitConfig is a per-tenant request budget.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// WriteCost is charged for POST requests, which reach a gateway.
	// Values below 1 charge a single unit.
	WriteCost int
}

// RateLimitByTenant charges each request against the caller's tenant, or
// against the client IP when no tenant is known. A nil limiter or a limiter
// error lets the request through.
func RateLimitByTenant(limiter outbound.RateLimiterPort, cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || cfg.Limit <= 0 {
			c.Next()
			return
		}

		d, err := limiter.Take(c.Request.Context(), rateLimitKey(c), requestCost(c, cfg), cfg.Limit, cfg.Window)
		if err != nil {
			c.Next()
			return
		}

		c.Header(RateLimitLimit, strconv.Itoa(cfg.Limit))
		c.Header(RateLimitRemaining, strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Header(RetryAfter, strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.PaymentErrorResponse{
				Code:      "RATE_LIMIT_EXCEEDED",
				Message:   "too many requests",
				Retryable: true,
			})
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if tenant := GetTenantID(c); tenant != "" {
		return "tenant:" + tenant
	}
	return "ip:" + c.ClientIP()
}

func requestCost(c *gin.Context, cfg RateLimitConfig) int {
	if c.Request.Method == http.MethodPost && cfg.WriteCost > 1 {
		return cfg.WriteCost
	}
	return 1
}

// retryAfterSeconds rounds up so clients never retry inside the window.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
