package middleware

import (
	"geminivoice-go/internal/monitoring"

	"github.com/gin-gonic/gin"
)

// Metrics counts admin requests per route and status class.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		monitoring.AdminRequestsTotal.WithLabelValues(c.Request.Method, path, monitoring.StatusClass(c.Writer.Status())).Inc()
	}
}
