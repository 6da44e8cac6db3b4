package outbound

import (
	"context"
	"time"
)

// TokenClaims identifies the caller of the payment API.
type TokenClaims struct {
	TenantID string
	Subject  string
}

// TokenValidatorPort validates bearer tokens presented by tenants.
type TokenValidatorPort interface {
	ValidateToken(token string) (*TokenClaims, error)
}

// RateDecision is the outcome of charging a request against a tenant budget.
type RateDecision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is zero when Allowed, otherwise the time until the oldest
	// request leaves the window.
	RetryAfter time.Duration
}

// RateLimiterPort charges requests against a sliding window.
type RateLimiterPort interface {
	// Take charges cost units under key. A rejected request consumes nothing.
	Take(ctx context.Context, key string, cost, limit int, window time.Duration) (RateDecision, error)
}
