package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts an OpenTelemetry server span per request and tags it with
// the dashboard selection. Disabled tracing is a pass-through.
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return otelgin.Middleware(serviceName)
}

// TagSpan adds the request's location, product and month to the active span.
func TagSpan() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			for key, value := range map[string]string{
				"dashboard.location": c.Param("location"),
				"dashboard.product":  c.Param("productId"),
				"dashboard.month":    c.Query("month"),
			} {
				if value != "" {
					span.SetAttributes(attribute.String(key, value))
				}
			}
		}
		c.Next()
	}
}
