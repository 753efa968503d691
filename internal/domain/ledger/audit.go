package ledger

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// maxSample bounds the ids kept per issue in a QualityReport.
const maxSample = 20

// Issue is one kind of data-quality problem with a bounded sample of offending ids.
type Issue struct {
	Count  int      `json:"count"`
	Sample []string `json:"sample,omitempty"`
}

func (i *Issue) add(id string) {
	i.Count++
	if len(i.Sample) < maxSample {
		i.Sample = append(i.Sample, id)
	}
}

// QualityReport counts records that the engine handles through a fallback rule.
// None of them abort a computation; the counts let a human audit drift between
// computed and real balances.
type QualityReport struct {
	Events   int `json:"events"`
	Balances int `json:"balances"`

	// EpochTimestamps are events pinned to Epoch because no date was usable.
	EpochTimestamps Issue `json:"epochTimestamps"`
	// InvalidQuantities are events whose quantity counts as zero.
	InvalidQuantities Issue `json:"invalidQuantities"`
	// InvalidBalances are snapshot entries whose quantity counts as zero.
	InvalidBalances Issue `json:"invalidBalances"`
	// UninvoicedDispatches are dispatches the legacy rule counts as inbound.
	UninvoicedDispatches Issue `json:"uninvoicedDispatches"`
	// UnknownOrigins are events with an origin outside the three feeds.
	UnknownOrigins Issue `json:"unknownOrigins"`
}

// Clean reports whether no fallback was needed.
func (r QualityReport) Clean() bool {
	return r.EpochTimestamps.Count == 0 &&
		r.InvalidQuantities.Count == 0 &&
		r.InvalidBalances.Count == 0 &&
		r.UninvoicedDispatches.Count == 0 &&
		r.UnknownOrigins.Count == 0
}

// Fingerprint is a stable hash of the issue counts and samples.
// Two reports with the same fingerprint describe the same problems.
func (r QualityReport) Fingerprint() string {
	h := fnv.New64a()
	for _, is := range []Issue{r.EpochTimestamps, r.InvalidQuantities, r.InvalidBalances, r.UninvoicedDispatches, r.UnknownOrigins} {
		ids := append([]string(nil), is.Sample...)
		sort.Strings(ids)
		fmt.Fprintf(h, "%d:%v;", is.Count, ids)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Audit inspects the snapshot and events for records handled by fallback rules.
func Audit(snapshot Snapshot, events []MovementEvent) QualityReport {
	r := QualityReport{Events: len(events), Balances: len(snapshot)}

	for _, e := range events {
		if e.TimestampSource == TimestampEpoch {
			r.EpochTimestamps.add(e.ID)
		}
		if !e.Quantity.Valid {
			r.InvalidQuantities.add(e.ID)
		}
		if IsAmbiguous(e) {
			r.UninvoicedDispatches.add(e.ID)
		}
		if !e.Origin.Valid() {
			r.UnknownOrigins.add(e.ID)
		}
	}

	for _, b := range snapshot {
		if !b.Quantity.Valid {
			r.InvalidBalances.add(b.ProductID + "@" + b.Location)
		}
	}

	return r
}
