package dashboard

import (
	"context"
	"sync"
	"time"

	appctx "chemdash/internal/core/context"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/pkg/logger"
)

// QualityRecorder exports data-quality counts, e.g. as metrics.
type QualityRecorder interface {
	RecordQuality(ctx context.Context, r ledger.QualityReport)
}

// QualityLog persists data-quality reports.
type QualityLog interface {
	Append(ctx context.Context, entry QualityEntry) error
}

// QualityEntry is one persisted data-quality report.
type QualityEntry struct {
	Fingerprint string
	Version     uint64
	ObservedAt  time.Time
	Report      ledger.QualityReport
}

// QualitySnapshot is the monitor's latest audit.
type QualitySnapshot struct {
	Report      ledger.QualityReport `json:"report"`
	Fingerprint string               `json:"fingerprint"`
	Version     uint64               `json:"version"`
	ObservedAt  time.Time            `json:"observedAt"`
	Clean       bool                 `json:"clean"`
}

// QualityMonitor audits every merged view for records the engine only handles
// through a fallback rule, so drift between computed and real balances stays
// visible. It logs and persists a report only when its fingerprint changes.
type QualityMonitor struct {
	recorder QualityRecorder
	store    QualityLog
	log      *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	latest *QualitySnapshot
}

// NewQualityMonitor creates a monitor. recorder and store may be nil.
func NewQualityMonitor(recorder QualityRecorder, store QualityLog, log *logger.Logger) *QualityMonitor {
	return &QualityMonitor{
		recorder: recorder,
		store:    store,
		log:      log.WithComponent("data_quality"),
		now:      time.Now,
	}
}

// Run audits every view from views until ctx is done.
func (q *QualityMonitor) Run(ctx context.Context, views Views) {
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
			q.Observe(ctx, v)
		}
	}
}

// Latest returns the most recent audit.
func (q *QualityMonitor) Latest() (QualitySnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.latest == nil {
		return QualitySnapshot{}, false
	}
	return *q.latest, true
}

// Observe audits one view.
func (q *QualityMonitor) Observe(ctx context.Context, v *feed.View) {
	if v == nil || !v.Ready() {
		return
	}
	ctx = appctx.WithFeed(ctx, v.Version, v.Degraded)

	report := ledger.Audit(v.Snapshot, v.AllEvents)
	snap := QualitySnapshot{
		Report:      report,
		Fingerprint: report.Fingerprint(),
		Version:     v.Version,
		ObservedAt:  q.now(),
		Clean:       report.Clean(),
	}

	q.mu.Lock()
	changed := q.latest == nil || q.latest.Fingerprint != snap.Fingerprint
	q.latest = &snap
	q.mu.Unlock()

	if q.recorder != nil {
		q.recorder.RecordQuality(ctx, report)
	}
	if !changed {
		return
	}

	log := q.log.WithContext(ctx)
	if snap.Clean {
		log.Infow("ledger data quality clean", "events", report.Events, "balances", report.Balances)
	} else {
		log.Warnw("ledger data quality issues",
			"events", report.Events,
			"epoch_timestamps", report.EpochTimestamps.Count,
			"invalid_quantities", report.InvalidQuantities.Count,
			"invalid_balances", report.InvalidBalances.Count,
			"uninvoiced_dispatches", report.UninvoicedDispatches.Count,
			"unknown_origins", report.UnknownOrigins.Count,
			"fingerprint", snap.Fingerprint,
		)
	}

	if q.store == nil {
		return
	}
	entry := QualityEntry{
		Fingerprint: snap.Fingerprint,
		Version:     snap.Version,
		ObservedAt:  snap.ObservedAt,
		Report:      report,
	}
	if err := q.store.Append(ctx, entry); err != nil {
		log.Errorw("failed to append data quality log", "error", err)
	}
}
