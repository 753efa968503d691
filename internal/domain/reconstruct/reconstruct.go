// Package reconstruct recovers historical stock balances from the current
// snapshot and the movement ledger, without a stored history.
//
// The snapshot is treated as a fixed point "now". A past month's closing
// balance is the snapshot with every later movement rolled back; its opening
// balance follows from the month's own movements. Baselines are never known,
// only balances relative to the snapshot.
package reconstruct

import (
	"github.com/shopspring/decimal"

	"chemdash/internal/core/apperror"
	"chemdash/internal/core/period"
	"chemdash/internal/core/types"
	"chemdash/internal/domain/ledger"
)

// Input is one reconstruction request.
type Input struct {
	// CurrentBalance is the snapshot total for the scope.
	CurrentBalance decimal.Decimal
	// Events are already filtered to the scope but not to the month.
	Events []ledger.MovementEvent
	Target period.Month
	// Now is the month containing the present instant.
	Now period.Month
	// Classifier defaults to ledger.LegacyClassifier.
	Classifier ledger.Classifier
}

// Quality counts events that were handled by a fallback rule.
type Quality struct {
	InvalidQuantity    int      `json:"invalidQuantity"`
	InvalidQuantityIDs []string `json:"invalidQuantityIds,omitempty"`
	EpochTimestamp     int      `json:"epochTimestamp"`
}

// Clean reports whether no fallback was applied.
func (q Quality) Clean() bool {
	return q.InvalidQuantity == 0 && q.EpochTimestamp == 0
}

// Result holds full-precision balances for one scope and month.
// Closing == Opening + Inflow - Outflow by construction.
type Result struct {
	Opening decimal.Decimal `json:"opening"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Closing decimal.Decimal `json:"closing"`
	Quality Quality         `json:"quality"`
}

// Rounded returns the result rounded for presentation.
func (r Result) Rounded() Result {
	return Result{
		Opening: types.Round(r.Opening),
		Inflow:  types.Round(r.Inflow),
		Outflow: types.Round(r.Outflow),
		Closing: types.Round(r.Closing),
		Quality: r.Quality,
	}
}

// Net is Inflow - Outflow.
func (r Result) Net() decimal.Decimal {
	return r.Inflow.Sub(r.Outflow)
}

// Reconstruct computes opening, inflow, outflow and closing for in.Target.
//
// For the current month the closing balance is the snapshot itself and events
// after the month are never consulted. For a past month every event dated
// after the month's end is rolled back. A month after in.Now is rejected.
//
// Invalid quantities contribute zero. Events pinned to ledger.Epoch fall
// outside every finite month after 1970 and so never affect a result;
// both are counted in Result.Quality.
func Reconstruct(in Input) (Result, error) {
	if in.Target.IsZero() || in.Now.IsZero() {
		return Result{}, apperror.NewValidation("target and current month are required")
	}
	if in.Target.After(in.Now) {
		return Result{}, apperror.NewFuturePeriod(in.Target.String(), in.Now.String())
	}

	classifier := in.Classifier
	if classifier == nil {
		classifier = ledger.LegacyClassifier
	}

	var (
		res      = Result{Inflow: decimal.Zero, Outflow: decimal.Zero}
		current  = in.Target.Equal(in.Now)
		future   = decimal.Zero
		monthEnd = in.Target.End()
	)

	for _, e := range in.Events {
		if !e.Quantity.Valid {
			res.Quality.InvalidQuantity++
			res.Quality.InvalidQuantityIDs = append(res.Quality.InvalidQuantityIDs, e.ID)
		}
		if e.TimestampSource == ledger.TimestampEpoch {
			res.Quality.EpochTimestamp++
		}

		q, _ := e.Quantity.Decimal()
		dir := classifier.Classify(e)

		switch {
		case in.Target.Contains(e.Timestamp):
			if dir == ledger.DirectionIn {
				res.Inflow = res.Inflow.Add(q)
			} else {
				res.Outflow = res.Outflow.Add(q)
			}
		case !current && e.Timestamp.After(monthEnd):
			future = future.Add(e.SignedQuantity(dir))
		}
	}

	if current {
		res.Closing = in.CurrentBalance
	} else {
		res.Closing = in.CurrentBalance.Sub(future)
	}
	res.Opening = res.Closing.Sub(res.Net())

	return res, nil
}

// FutureNetDelta is the signed sum of events dated after target's end:
// inbound quantities add, outbound quantities subtract.
func FutureNetDelta(events []ledger.MovementEvent, target period.Month, classifier ledger.Classifier) decimal.Decimal {
	if classifier == nil {
		classifier = ledger.LegacyClassifier
	}
	end := target.End()
	sum := decimal.Zero
	for _, e := range events {
		if e.Timestamp.After(end) {
			sum = sum.Add(e.SignedQuantity(classifier.Classify(e)))
		}
	}
	return sum
}
