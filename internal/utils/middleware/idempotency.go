package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/utils/requestctx"
)

const (
	// IdempotencyKeyHeader carries the client's idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayedHeader marks a response served from the cache.
	IdempotentReplayedHeader = "Idempotent-Replayed"

	idempotencyKeyPrefix  = "paygate:idempotency:"
	defaultIdempotencyTTL = 24 * time.Hour
	defaultInFlightTTL    = 30 * time.Second
	maxIdempotencyKeyLen  = 255
)

// IdempotencyConfig holds idempotency middleware configuration.
type IdempotencyConfig struct {
	// TTL is how long a final response is replayed.
	TTL time.Duration
	// InFlightTTL bounds how long a crashed request blocks its key.
	InFlightTTL time.Duration
	// Methods the middleware applies to. Default: POST.
	Methods []string
}

// storedResponse is a final response kept for replay.
type storedResponse struct {
	Fingerprint string            `json:"fingerprint"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency forwards the Idempotency-Key header to gateway calls through
// the request context and, with Redis, replays final responses.
//
// A key reused with a different body is rejected. Retryable failures are not
// stored, so retrying them with the same key runs the operation again.
func Idempotency(redis goredis.UniversalClient, cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultIdempotencyTTL
	}
	if cfg.InFlightTTL <= 0 {
		cfg.InFlightTTL = defaultInFlightTTL
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = []string{http.MethodPost}
	}
	methods := make(map[string]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods[m] = true
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if !methods[c.Request.Method] || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			abortIdempotency(c, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "idempotency key is too long", false)
			return
		}
		c.Request = c.Request.WithContext(requestctx.WithIdempotencyKey(c.Request.Context(), key))

		if redis == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortIdempotency(c, http.StatusBadRequest, "INVALID_INPUT", "unreadable request body", false)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		fingerprint := bodyFingerprint(body)

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(GetTenantID(c), c.Request.Method, c.Request.URL.Path, key)

		if stored, err := loadResponse(ctx, redis, cacheKey); err == nil {
			if stored.Fingerprint != fingerprint {
				abortIdempotency(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED",
					"idempotency key was already used with a different request body", false)
				return
			}
			for k, v := range stored.Headers {
				c.Header(k, v)
			}
			c.Header(IdempotentReplayedHeader, "true")
			c.Data(stored.StatusCode, stored.Headers["Content-Type"], stored.Body)
			c.Abort()
			return
		}

		lockKey := cacheKey + ":lock"
		locked, err := redis.SetNX(ctx, lockKey, fingerprint, cfg.InFlightTTL).Result()
		if err != nil {
			// Redis trouble only disables replay; the reference lock still serializes.
			c.Next()
			return
		}
		if !locked {
			abortIdempotency(c, http.StatusConflict, "REQUEST_IN_PROGRESS",
				"a request with this idempotency key is already being processed", true)
			return
		}
		defer releaseIdempotencyLock(redis, lockKey)

		writer := &captureWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = writer

		c.Next()

		if !isFinalResponse(writer.Status(), writer.body.Bytes()) {
			return
		}
		headers := make(map[string]string, len(writer.Header()))
		for k := range writer.Header() {
			headers[k] = writer.Header().Get(k)
		}
		_ = storeResponse(ctx, redis, cacheKey, &storedResponse{
			Fingerprint: fingerprint,
			StatusCode:  writer.Status(),
			Headers:     headers,
			Body:        writer.body.Bytes(),
		}, cfg.TTL)
	}
}

// isFinalResponse reports whether replaying the response is correct: server
// errors and failures marked retryable must run again.
func isFinalResponse(status int, body []byte) bool {
	switch {
	case status >= http.StatusInternalServerError:
		return false
	case status == http.StatusTooManyRequests:
		return false
	case status < http.StatusBadRequest:
		return true
	}
	var resp model.PaymentErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return true
	}
	return !resp.Retryable
}

func abortIdempotency(c *gin.Context, status int, code, message string, retryable bool) {
	c.AbortWithStatusJSON(status, model.PaymentErrorResponse{Code: code, Message: message, Retryable: retryable})
}

// idempotencyCacheKey scopes a client key to its tenant and endpoint.
func idempotencyCacheKey(tenantID, method, path, key string) string {
	hash := sha256.Sum256([]byte(tenantID + ":" + method + ":" + path + ":" + key))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

func bodyFingerprint(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

func loadResponse(ctx context.Context, redis goredis.UniversalClient, key string) (*storedResponse, error) {
	data, err := redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var resp storedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Join(errors.New("corrupt idempotency record"), err)
	}
	return &resp, nil
}

func storeResponse(ctx context.Context, redis goredis.UniversalClient, key string, resp *storedResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return redis.Set(ctx, key, data, ttl).Err()
}

// releaseIdempotencyLock runs on its own context so a cancelled request still frees the key.
func releaseIdempotencyLock(redis goredis.UniversalClient, lockKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = redis.Del(ctx, lockKey).Err()
}
