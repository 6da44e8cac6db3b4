package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/utils/requestctx"
)

type idempotencyHarness struct {
	mr     *miniredis.Miniredis
	router *gin.Engine
	calls  int32
	// respond overrides the default 200 answer.
	respond func(c *gin.Context)
}

func newIdempotencyHarness(t *testing.T, withRedis bool) *idempotencyHarness {
	t.Helper()
	h := &idempotencyHarness{}

	var client goredis.UniversalClient
	if withRedis {
		h.mr = miniredis.RunT(t)
		rc := goredis.NewClient(&goredis.Options{Addr: h.mr.Addr()})
		t.Cleanup(func() { _ = rc.Close() })
		client = rc
	}

	h.router = gin.New()
	h.router.Use(func(c *gin.Context) {
		c.Set(TenantIDKey, c.GetHeader("X-Tenant"))
		c.Next()
	})
	h.router.Use(Idempotency(client, IdempotencyConfig{}))
	h.router.POST("/payments/:gateway/:reference/capture", func(c *gin.Context) {
		n := atomic.AddInt32(&h.calls, 1)
		if h.respond != nil {
			h.respond(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"key":  requestctx.IdempotencyKey(c.Request.Context()),
			"call": n,
		})
	})
	return h
}

func (h *idempotencyHarness) post(tenant, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments/stripe/pi_1/capture", strings.NewReader(body))
	req.Header.Set("X-Tenant", tenant)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *idempotencyHarness) callCount() int32 { return atomic.LoadInt32(&h.calls) }

func TestIdempotency(t *testing.T) {
	t.Run("replays the stored response", func(t *testing.T) {
		h := newIdempotencyHarness(t, true)

		first := h.post("tenant-a", "cap-1", `{"amount":"10.00"}`)
		require.Equal(t, http.StatusOK, first.Code)
		assert.Contains(t, first.Body.String(), `"key":"cap-1"`)
		assert.Empty(t, first.Header().Get(IdempotentReplayedHeader))

		second := h.post("tenant-a", "cap-1", `{"amount":"10.00"}`)
		assert.Equal(t, http.StatusOK, second.Code)
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(IdempotentReplayedHeader))
		assert.Contains(t, second.Header().Get("Content-Type"), "application/json")
		assert.Equal(t, int32(1), h.callCount())
	})

	t.Run("a different body under the same key is rejected", func(t *testing.T) {
		h := newIdempotencyHarness(t, true)

		h.post("tenant-a", "cap-1", `{"amount":"10.00"}`)
		w := h.post("tenant-a", "cap-1", `{"amount":"99.00"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_REUSED")
		assert.Equal(t, int32(1), h.callCount())
	})

	t.Run("keys are scoped by tenant", func(t *testing.T) {
		h := newIdempotencyHarness(t, true)

		h.post("tenant-a", "cap-1", "")
		h.post("tenant-b", "cap-1", "")
		assert.Equal(t, int32(2), h.callCount())
	})

	t.Run("final business errors are replayed", func(t *testing.T) {
		h := newIdempotencyHarness(t, true)
		h.respond = func(c *gin.Context) {
			c.JSON(http.StatusUnprocessableEntity, model.PaymentErrorResponse{Code: "GATEWAY_REJECTED", Retryable: false})
		}

		h.post("tenant-a", "cap-1", "")
		w := h.post("tenant-a", "cap-1", "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, int32(1), h.callCount())
	})

	t.Run("retryable failures run again", func(t *testing.T) {
		for name, respond := range map[string]func(c *gin.Context){
			"busy": func(c *gin.Context) {
				c.JSON(http.StatusConflict, model.PaymentErrorResponse{Code: "PAYMENT_BUSY", Retryable: true})
			},
			"gateway down": func(c *gin.Context) {
				c.JSON(http.StatusServiceUnavailable, model.PaymentErrorResponse{Code: "GATEWAY_UNAVAILABLE", Retryable: true})
			},
			"rate limited": func(c *gin.Context) { c.Status(http.StatusTooManyRequests) },
		} {
			t.Run(name, func(t *testing.T) {
				h := newIdempotencyHarness(t, true)
				h.respond = respond

				h.post("tenant-a", "cap-1", "")
				h.post("tenant-a", "cap-1", "")
				assert.Equal(t, int32(2), h.callCount())
			})
		}
	})

	t.Run("in-flight key conflicts", func(t *testing.T) {
		h := newIdempotencyHarness(t, true)
		lockKey := idempotencyCacheKey("tenant-a", http.MethodPost, "/payments/stripe/pi_1/capture", "cap-1") + ":lock"
		require.NoError(t, h.mr.Set(lockKey, "x"))

		w := h.post("tenant-a", "cap-1", "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "REQUEST_IN_PROGRESS")
		assert.Zero(t, h.callCount())
	})

	t.Run("the in-flight lock is released", func(t *testing.T) {
		h := newIdempotencyHarness(t, true)
		h.post("tenant-a", "cap-1", "")

		lockKey := idempotencyCacheKey("tenant-a", http.MethodPost, "/payments/stripe/pi_1/capture", "cap-1") + ":lock"
		assert.False(t, h.mr.Exists(lockKey))
	})

	t.Run("oversized key", func(t *testing.T) {
		h := newIdempotencyHarness(t, false)
		w := h.post("tenant-a", strings.Repeat("k", maxIdempotencyKeyLen+1), "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, h.callCount())
	})

	t.Run("without redis the key still reaches the context", func(t *testing.T) {
		h := newIdempotencyHarness(t, false)

		h.post("tenant-a", "cap-1", "")
		w := h.post("tenant-a", "cap-1", "")
		assert.Contains(t, w.Body.String(), `"key":"cap-1"`)
		assert.Equal(t, int32(2), h.callCount())
	})

	t.Run("no header passes through", func(t *testing.T) {
		h := newIdempotencyHarness(t, true)

		w := h.post("tenant-a", "", "")
		assert.Contains(t, w.Body.String(), `"key":""`)
		assert.Empty(t, h.mr.Keys())
	})
}

func TestIsFinalResponse(t *testing.T) {
	assert.True(t, isFinalResponse(http.StatusCreated, nil))
	assert.True(t, isFinalResponse(http.StatusNotFound, []byte(`{"code":"PAYMENT_NOT_FOUND","retryable":false}`)))
	assert.True(t, isFinalResponse(http.StatusBadRequest, []byte(`not json`)))
	assert.False(t, isFinalResponse(http.StatusConflict, []byte(`{"code":"CONCURRENT_UPDATE","retryable":true}`)))
	assert.False(t, isFinalResponse(http.StatusBadGateway, nil))
}
