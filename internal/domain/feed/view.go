package feed

import (
	"sort"
	"time"

	"chemdash/internal/domain/ledger"
)

// View is the merged state of all sources at one instant.
// A published View is never modified; every change produces a new one.
type View struct {
	Snapshot       ledger.Snapshot
	Imports        []ledger.MovementEvent
	LocalPurchases []ledger.MovementEvent
	Dispatches     []ledger.MovementEvent

	// AllEvents is the union of the three ledgers, newest first.
	AllEvents []ledger.MovementEvent

	// Degraded is set while any source's latest update was an error.
	// The items of such a source are its last good value.
	Degraded bool
	Errors   map[Name]string

	// Pending lists sources that have not delivered anything yet.
	Pending []Name

	// SourceUpdatedAt is the time of each source's latest update.
	SourceUpdatedAt map[Name]time.Time

	Version   uint64
	UpdatedAt time.Time
}

// Ready reports whether every source has delivered at least once.
func (v *View) Ready() bool {
	return len(v.Pending) == 0
}

// PendingNames returns Pending as strings.
func (v *View) PendingNames() []string {
	out := make([]string, len(v.Pending))
	for i, n := range v.Pending {
		out[i] = string(n)
	}
	return out
}

// Events returns the events of one origin.
func (v *View) Events(origin ledger.Origin) []ledger.MovementEvent {
	switch origin {
	case ledger.OriginImport:
		return v.Imports
	case ledger.OriginLocalPurchase:
		return v.LocalPurchases
	case ledger.OriginDispatch:
		return v.Dispatches
	}
	return nil
}

// state is the merger's private record of each source's last good value.
type state struct {
	snapshot ledger.Snapshot
	events   map[Name][]ledger.MovementEvent
	errs     map[Name]string
	seen     map[Name]bool
	at       map[Name]time.Time
	version  uint64
}

func newState() *state {
	return &state{
		events: make(map[Name][]ledger.MovementEvent),
		errs:   make(map[Name]string),
		seen:   make(map[Name]bool),
		at:     make(map[Name]time.Time),
	}
}

// record stores an update. An error keeps the previous items.
func (s *state) record(name Name, at time.Time, err error) bool {
	s.seen[name] = true
	s.at[name] = at
	if err != nil {
		s.errs[name] = err.Error()
		return false
	}
	delete(s.errs, name)
	return true
}

// build assembles a fresh View from the current state.
func (s *state) build(now time.Time) *View {
	s.version++

	v := &View{
		Snapshot:        s.snapshot,
		Imports:         s.events[NameImports],
		LocalPurchases:  s.events[NameLocalPurchases],
		Dispatches:      s.events[NameDispatches],
		Errors:          make(map[Name]string, len(s.errs)),
		SourceUpdatedAt: make(map[Name]time.Time, len(s.at)),
		Version:         s.version,
		UpdatedAt:       now,
	}

	for k, e := range s.errs {
		v.Errors[k] = e
	}
	for k, t := range s.at {
		v.SourceUpdatedAt[k] = t
	}
	v.Degraded = len(v.Errors) > 0

	for _, n := range Names {
		if !s.seen[n] {
			v.Pending = append(v.Pending, n)
		}
	}

	v.AllEvents = mergeEvents(v.Imports, v.LocalPurchases, v.Dispatches)
	return v
}

// mergeEvents concatenates the ledgers into a new slice sorted by timestamp
// descending, ties broken by id.
func mergeEvents(lists ...[]ledger.MovementEvent) []ledger.MovementEvent {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	all := make([]ledger.MovementEvent, 0, n)
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.After(all[j].Timestamp)
		}
		return all[i].ID < all[j].ID
	})
	return all
}
