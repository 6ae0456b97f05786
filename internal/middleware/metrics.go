package middleware

import (
	"strconv"
	"time"

	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware labels by route template so /v1/bots/:id stays one series.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.Requests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
