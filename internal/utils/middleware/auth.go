package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	"github.com/paygate/server/internal/utils/requestctx"
)

const (
	TenantIDKey = "tenant_id"
	SubjectKey  = "subject"

	bearerScheme = "bearer"
	authRealm    = `Bearer realm="paygate"`
)

// RequireAuth resolves the calling tenant from a bearer token and rejects the
// request when there is none. The tenant is stored in the gin context and the
// request context.
func RequireAuth(validator outbound.TokenValidatorPort) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "UNAUTHORIZED", "bearer token required")
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil || claims == nil || claims.TenantID == "" {
			unauthorized(c, "INVALID_TOKEN", "token is invalid, expired or names no tenant")
			return
		}

		c.Set(TenantIDKey, claims.TenantID)
		c.Set(SubjectKey, claims.Subject)
		c.Request = c.Request.WithContext(requestctx.WithTenantID(c.Request.Context(), claims.TenantID))
		c.Next()
	}
}

// bearerToken parses "Bearer <token>". The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, code, message string) {
	c.Header("WWW-Authenticate", authRealm)
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.PaymentErrorResponse{Code: code, Message: message})
}

// GetTenantID returns the authenticated tenant, or "" before RequireAuth ran.
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}
