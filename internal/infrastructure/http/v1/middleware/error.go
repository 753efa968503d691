package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chemdash/internal/core/apperror"
	"chemdash/internal/infrastructure/http/v1/dto"
	"chemdash/pkg/logger"
)

// ErrorHandler renders the last error a handler registered with c.Error.
// A response the handler already wrote is left alone.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeProblem(c, c.Errors.Last().Err)
	}
}

// writeProblem logs err when it hides a cause and writes its JSON body.
// Server errors carry the request id so a report can be matched to the log.
func writeProblem(c *gin.Context, err error) {
	ctx := c.Request.Context()
	p := apperror.Problem(err)

	if p.Err != nil {
		logger.Error(ctx, "request error",
			"code", p.Code,
			"status", p.HTTPStatus,
			"cause", p.Err,
		)
	}
	if p.HTTPStatus >= 500 {
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, p.Code)
		}
		if id := c.GetString("request_id"); id != "" {
			p.WithDetail("request_id", id)
		}
	}
	c.JSON(p.HTTPStatus, dto.NewErrorResponse(p))
}
