package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chemdash/internal/core/apperror"
	appctx "chemdash/internal/core/context"
	"chemdash/internal/domain/feed"
)

// Response headers describing the merged view an answer was computed from.
const (
	HeaderFeedVersion  = "X-Feed-Version"
	HeaderFeedDegraded = "X-Feed-Degraded"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the gin context and aborts the request.
// middleware.ErrorHandler renders it.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// UseView tags the response and the request context with the version of v.
// Answers change with every merge, so they are never cached.
func (h *BaseHandler) UseView(c *gin.Context, v *feed.View) context.Context {
	c.Header(HeaderFeedVersion, strconv.FormatUint(v.Version, 10))
	if v.Degraded {
		c.Header(HeaderFeedDegraded, "true")
	}
	c.Header("Cache-Control", "no-store")

	ctx := appctx.WithFeed(c.Request.Context(), v.Version, v.Degraded)
	c.Request = c.Request.WithContext(ctx)
	return ctx
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
