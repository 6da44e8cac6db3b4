package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/paygate/server/internal/utils/metrics"
)

func newMetricsRouter(m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(m, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/payments/:gateway/:reference/capture", func(c *gin.Context) { c.Status(http.StatusConflict) })
	return r
}

func TestMetrics(t *testing.T) {
	m := metrics.NewWithRegisterer("test", prometheus.NewRegistry())
	r := newMetricsRouter(m)

	for _, ref := range []string{"pi_1", "pi_2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/payments/stripe/"+ref+"/capture", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
	}

	t.Run("labels use the route pattern", func(t *testing.T) {
		assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal))
		assert.Equal(t, float64(2), testutil.ToFloat64(
			m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/payments/:gateway/:reference/capture", "4xx")))
	})

	t.Run("skipped paths are not recorded", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal))
	})

	t.Run("unmatched routes share one label", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
		assert.Equal(t, float64(1), testutil.ToFloat64(
			m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "4xx")))
	})

	t.Run("in-flight gauge returns to zero", func(t *testing.T) {
		assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
	})
}

func TestMetrics_Nil(t *testing.T) {
	r := newMetricsRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
