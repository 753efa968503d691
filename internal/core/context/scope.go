// Package context carries request and feed-cycle scoped values.
package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies the request or background cycle a log line belongs to.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string // empty for background work
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, t)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// FromSpan returns the ids of the active OpenTelemetry span, or nil when
// there is none.
func FromSpan(ctx context.Context) *TraceContext {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return &TraceContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()}
}

// Background scopes work that does not start from a request, such as a feed
// reload triggered by a notification. An active span supplies the ids.
func Background(ctx context.Context) context.Context {
	t := FromSpan(ctx)
	if t == nil {
		t = &TraceContext{
			TraceID: uuid.New().String(),
			SpanID:  uuid.New().String()[:16],
		}
	}
	return WithTrace(ctx, t)
}

// Feed describes the merged view a piece of work was computed from.
type Feed struct {
	Version  uint64
	Degraded bool
}

type feedKey struct{}

// WithFeed records the view version and degraded flag in ctx.
func WithFeed(ctx context.Context, version uint64, degraded bool) context.Context {
	return context.WithValue(ctx, feedKey{}, Feed{Version: version, Degraded: degraded})
}

// GetFeed returns the view recorded by WithFeed.
func GetFeed(ctx context.Context) (Feed, bool) {
	f, ok := ctx.Value(feedKey{}).(Feed)
	return f, ok
}
