// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chemdash/internal/domain/feed"
	"chemdash/internal/infrastructure/http/v1/dto"
)

// Pinger checks a backend dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ViewSource returns the latest merged view.
type ViewSource interface {
	Current() *feed.View
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	views   ViewSource
	checks  map[string]Pinger
	app     string
	version string
	info    func() map[string]any
}

// NewHealthHandler creates a new health handler. checks are pinged on every
// readiness probe.
func NewHealthHandler(app, version string, views ViewSource, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{views: views, checks: checks, app: app, version: version}
}

// WithInfo adds backend statistics to the info endpoint.
func (h *HealthHandler) WithInfo(fn func() map[string]any) *HealthHandler {
	h.info = fn
	return h
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe. It stays 503 until every feed has delivered
// at least once and while a backend check fails. A degraded view is ready.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	healthy := true
	checks := make(map[string]string, len(h.checks))

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		checks[name] = "healthy"
	}

	var v *feed.View
	if h.views != nil {
		v = h.views.Current()
	}
	switch {
	case v == nil || !v.Ready():
		checks["feeds"] = "loading"
		healthy = false
	case v.Degraded:
		checks["feeds"] = "degraded"
	default:
		checks["feeds"] = "healthy"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "error", http.StatusServiceUnavailable
	} else if v.Degraded {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"feeds":  dto.FromView(v),
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     h.app,
		"version": h.version,
	}
	if h.views != nil {
		body["feeds"] = dto.FromView(h.views.Current())
	}
	if h.info != nil {
		for k, v := range h.info() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}
