package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edustack/timetable-api/internal/service"
)

// Metrics records one observation per request, labelled by route
// template rather than raw path so version ids do not explode the
// cardinality.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
