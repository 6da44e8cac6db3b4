package middleware

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paygate/server/internal/shared/logger"
)

// Logging writes one access log line per request. Payment routes carry the
// gateway and reference so a request can be matched to its payment.
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.RawQuery)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if query != "" {
			attrs = append(attrs, "query", query)
		}
		if ua := c.Request.UserAgent(); ua != "" {
			attrs = append(attrs, "user_agent", ua)
		}
		if requestID := GetRequestID(c); requestID != "" {
			attrs = append(attrs, "request_id", requestID)
		}
		if tenantID := GetTenantID(c); tenantID != "" {
			attrs = append(attrs, "tenant_id", tenantID)
		}
		if gateway := c.Param("gateway"); gateway != "" {
			attrs = append(attrs, "gateway", gateway)
		}
		if reference := c.Param("reference"); reference != "" {
			attrs = append(attrs, "reference", reference)
		}
		if c.GetHeader(IdempotencyKeyHeader) != "" {
			attrs = append(attrs, "idempotent", true)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		msg := "HTTP Request"
		switch {
		case status >= 500:
			log.Error(msg, attrs...)
		case status >= 400:
			log.Warn(msg, attrs...)
		default:
			log.Info(msg, attrs...)
		}
	}
}

// redactQuery masks credential parameters some gateways append to callback URLs.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparseable]"
	}
	changed := false
	for key := range values {
		if logger.IsSensitive(key) {
			values[key] = []string{logger.Redacted}
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return values.Encode()
}
