package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"chemdash/internal/core/period"
	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/internal/domain/reconstruct"
)

// Attribute keys.
var (
	AttrQuality = attribute.Key("quality")
	AttrKind    = attribute.Key("kind")
	AttrSource  = attribute.Key("source")
)

// Counter is a monotonically increasing int64 metric.
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a new Counter metric.
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return &Counter{counter: c}, nil
}

// Add increments the counter by value.
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increments the counter by 1.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Gauge is a point-in-time int64 metric.
type Gauge struct {
	gauge metric.Int64Gauge
}

// NewGauge creates a new Gauge metric.
func NewGauge(meter metric.Meter, name, description, unit string) (*Gauge, error) {
	g, err := meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge %s: %w", name, err)
	}
	return &Gauge{gauge: g}, nil
}

// Record records the current value.
func (g *Gauge) Record(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	g.gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

// EngineMetrics records reconstruction, feed and data-quality measurements.
type EngineMetrics struct {
	reconstructions   *Counter
	coercedQuantities *Counter

	qualityIssues   *Gauge
	ledgerEvents    *Gauge
	snapshotEntries *Gauge
	feedDegraded    *Gauge
	feedErrors      *Gauge
	viewVersion     *Gauge
}

var (
	_ reconstruct.Observer      = (*EngineMetrics)(nil)
	_ dashboard.QualityRecorder = (*EngineMetrics)(nil)
)

// NewEngineMetrics creates the instruments on meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &EngineMetrics{}
	var err error

	counters := []struct {
		dst              **Counter
		name, desc, unit string
	}{
		{&m.reconstructions, "chemdash_reconstructions_total", "Balance reconstructions by data quality", "{reconstructions}"},
		{&m.coercedQuantities, "chemdash_coerced_quantities_total", "Event quantities counted as zero during reconstruction", "{events}"},
	}
	for _, c := range counters {
		if *c.dst, err = NewCounter(meter, c.name, c.desc, c.unit); err != nil {
			return nil, err
		}
	}

	gauges := []struct {
		dst              **Gauge
		name, desc, unit string
	}{
		{&m.qualityIssues, "chemdash_data_quality_issues", "Records handled through a fallback rule, by kind", "{records}"},
		{&m.ledgerEvents, "chemdash_ledger_events", "Events in the merged ledger", "{events}"},
		{&m.snapshotEntries, "chemdash_snapshot_entries", "Entries in the balance snapshot", "{entries}"},
		{&m.feedDegraded, "chemdash_feed_degraded", "1 while any feed serves its last good value", "1"},
		{&m.feedErrors, "chemdash_feed_error", "1 while a feed's latest update failed", "1"},
		{&m.viewVersion, "chemdash_view_version", "Version of the latest merged view", "1"},
	}
	for _, g := range gauges {
		if *g.dst, err = NewGauge(meter, g.name, g.desc, g.unit); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Reconstructed implements reconstruct.Observer.
func (m *EngineMetrics) Reconstructed(ctx context.Context, _ string, _ period.Month, q reconstruct.Quality) {
	quality := "clean"
	if !q.Clean() {
		quality = "fallback"
	}
	m.reconstructions.Inc(ctx, AttrQuality.String(quality))
	if q.InvalidQuantity > 0 {
		m.coercedQuantities.Add(ctx, int64(q.InvalidQuantity))
	}
}

// RecordQuality implements dashboard.QualityRecorder.
func (m *EngineMetrics) RecordQuality(ctx context.Context, r ledger.QualityReport) {
	m.ledgerEvents.Record(ctx, int64(r.Events))
	m.snapshotEntries.Record(ctx, int64(r.Balances))

	for kind, is := range map[string]ledger.Issue{
		"epoch_timestamp":     r.EpochTimestamps,
		"invalid_quantity":    r.InvalidQuantities,
		"invalid_balance":     r.InvalidBalances,
		"uninvoiced_dispatch": r.UninvoicedDispatches,
		"unknown_origin":      r.UnknownOrigins,
	} {
		m.qualityIssues.Record(ctx, int64(is.Count), AttrKind.String(kind))
	}
}

// RecordView records the health of one merged view.
func (m *EngineMetrics) RecordView(ctx context.Context, v *feed.View) {
	if v == nil {
		return
	}
	m.viewVersion.Record(ctx, int64(v.Version))
	m.feedDegraded.Record(ctx, boolValue(v.Degraded))
	for _, name := range feed.Names {
		_, failed := v.Errors[name]
		m.feedErrors.Record(ctx, boolValue(failed), AttrSource.String(string(name)))
	}
}

// Run records every view from views until ctx is done.
func (m *EngineMetrics) Run(ctx context.Context, views dashboard.Views) {
	ch, unsubscribe := views.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			m.RecordView(ctx, v)
		}
	}
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
