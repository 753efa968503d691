// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"chemdash/internal/core/apperror"
	"chemdash/pkg/logger"
)

// Recovery turns a handler panic into a 500 response. It runs outside
// ErrorHandler, so it renders the response itself. The stack is logged,
// never returned.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"panic", r,
				"path", c.Request.URL.Path,
				"stack", string(debug.Stack()),
			)

			err := apperror.NewInternal(fmt.Errorf("panic: %v", r))
			_ = c.Error(err)
			if !c.Writer.Written() {
				writeProblem(c, err)
			}
			c.Abort()
		}()
		c.Next()
	}
}
