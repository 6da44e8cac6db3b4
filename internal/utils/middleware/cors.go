package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets browser checkouts on origins call the payment API. An empty list
// allows any origin. Credentials are never allowed since callers
// authenticate with bearer tokens.
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(corsConfig(origins))
}

func corsConfig(origins []string) cors.Config {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", RequestIDHeader, IdempotencyKeyHeader},
		ExposeHeaders: []string{
			"Content-Length", RequestIDHeader, IdempotentReplayedHeader,
			RateLimitLimit, RateLimitRemaining, RetryAfter,
		},
		MaxAge: 12 * time.Hour,
	}
}
