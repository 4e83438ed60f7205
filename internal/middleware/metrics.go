package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lucasberan/keygate/pkg/metrics"
)

// Metrics records request latency labelled by route template. Requests that
// matched no route are skipped: recording raw URL paths would let clients mint
// unbounded label cardinality. Scrapes of /metrics itself are skipped too.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" || route == "/metrics" {
			return
		}

		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
