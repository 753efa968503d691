package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chemdash/pkg/logger"
)

// Logger logs one line per request once it completes. Handlers that call
// BaseHandler.UseView add the feed version through the request context.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		kv := []any{
			"method", c.Request.Method,
			"route", route,
			"path", c.Request.URL.Path,
			"status", status,
			"bytes", c.Writer.Size(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			kv = append(kv, "query", q)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			kv = append(kv, "error", errs)
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Errorw("http request", kv...)
		case strings.HasPrefix(route, "/health/"):
			l.Debugw("http request", kv...)
		case strings.HasSuffix(route, "/stream"):
			l.Infow("stream closed", kv...)
		default:
			l.Infow("http request", kv...)
		}
	}
}
