package dto

import (
	"time"

	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/internal/domain/reports"
)

// MonthQuery selects a month; empty means the current month.
type MonthQuery struct {
	Month string `form:"month"`
}

// EventsQuery filters the merged event listing.
type EventsQuery struct {
	Location  string `form:"location"`
	ProductID string `form:"productId"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// PanelQuery is the initial selection of a panel stream.
type PanelQuery struct {
	Month     string `form:"month"`
	ProductID string `form:"productId"`
	Location  string `form:"location"`
}

// HistoryQuery pages the data-quality history.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ProductTurnoverResponse is a product turnover with its stat block.
type ProductTurnoverResponse struct {
	reports.Turnover
	Stat reports.ProductStat `json:"stat"`
}

// FeedStatus describes the view a response was computed from.
type FeedStatus struct {
	Version         uint64               `json:"version"`
	Degraded        bool                 `json:"degraded"`
	Errors          map[string]string    `json:"errors,omitempty"`
	Pending         []string             `json:"pending,omitempty"`
	SourceUpdatedAt map[string]time.Time `json:"sourceUpdatedAt,omitempty"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// FromView creates FeedStatus from a merged view.
func FromView(v *feed.View) FeedStatus {
	if v == nil {
		return FeedStatus{}
	}
	s := FeedStatus{
		Version:   v.Version,
		Degraded:  v.Degraded,
		Pending:   v.PendingNames(),
		UpdatedAt: v.UpdatedAt,
	}
	if len(v.Errors) > 0 {
		s.Errors = make(map[string]string, len(v.Errors))
		for name, msg := range v.Errors {
			s.Errors[string(name)] = msg
		}
	}
	if len(v.SourceUpdatedAt) > 0 {
		s.SourceUpdatedAt = make(map[string]time.Time, len(v.SourceUpdatedAt))
		for name, at := range v.SourceUpdatedAt {
			s.SourceUpdatedAt[string(name)] = at
		}
	}
	return s
}

// QualityHistoryEntry is one persisted data-quality report.
type QualityHistoryEntry struct {
	Fingerprint string               `json:"fingerprint"`
	Version     uint64               `json:"version"`
	ObservedAt  time.Time            `json:"observedAt"`
	Clean       bool                 `json:"clean"`
	Report      ledger.QualityReport `json:"report"`
}

// FromQualityEntry creates QualityHistoryEntry from a log entry.
func FromQualityEntry(e dashboard.QualityEntry) QualityHistoryEntry {
	return QualityHistoryEntry{
		Fingerprint: e.Fingerprint,
		Version:     e.Version,
		ObservedAt:  e.ObservedAt,
		Clean:       e.Report.Clean(),
		Report:      e.Report,
	}
}
