package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/paygate/server/internal/port/outbound"
)

// Config holds token configuration.
type Config struct {
	Secret string
	Issuer string
}

// tenantClaims is the payload of a tenant API token.
type tenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Manager signs and validates tenant API tokens.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewManager creates a token manager.
func NewManager(cfg Config) *Manager {
	return &Manager{secret: []byte(cfg.Secret), issuer: cfg.Issuer, now: time.Now}
}

// Issue signs a token for a tenant. A zero ttl issues a token without expiry.
func (m *Manager) Issue(tenantID, subject string, ttl time.Duration) (string, error) {
	if tenantID == "" {
		return "", errors.New("tenant id is required")
	}
	now := m.now()
	claims := tenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   m.issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a tenant token.
func (m *Manager) ValidateToken(tokenString string) (*outbound.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims tenantClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.TenantID == "" {
		return nil, errors.New("invalid token")
	}

	return &outbound.TokenClaims{
		TenantID: claims.TenantID,
		Subject:  claims.Subject,
	}, nil
}

// Compile-time check
var _ outbound.TokenValidatorPort = (*Manager)(nil)
