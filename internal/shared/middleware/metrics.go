package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paygate/server/internal/utils/metrics"
)

// Metrics records request counts and latency per route pattern.
// Requests to skipPaths, such as the probe and scrape endpoints, are not recorded.
func Metrics(m *metrics.Metrics, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		// Route patterns keep references and IDs out of the label set.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
