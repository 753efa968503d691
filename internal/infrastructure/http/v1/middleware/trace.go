package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "chemdash/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	// MaxRequestIDLength bounds client supplied request ids.
	MaxRequestIDLength = 128
)

// Trace scopes the request for logging. Ids of the span started by Tracing
// take precedence over an X-Trace-ID header.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if len(requestID) > MaxRequestIDLength {
			requestID = requestID[:MaxRequestIDLength]
		}
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := c.Request.Context()
		t := appctx.FromSpan(ctx)
		if t == nil {
			t = appctx.GetTrace(appctx.Background(ctx))
			if h := c.GetHeader(HeaderTraceID); h != "" {
				t.TraceID = h
			}
		}
		t.RequestID = requestID
		c.Request = c.Request.WithContext(appctx.WithTrace(ctx, t))

		c.Set("trace_id", t.TraceID)
		c.Set("request_id", requestID)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, t.TraceID)

		c.Next()
	}
}
