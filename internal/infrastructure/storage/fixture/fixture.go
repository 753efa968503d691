// Package fixture holds static stock data sets: the demo data served by the
// memory feed backend and written by the seed tool, or a JSON file.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
)

// Balance is one snapshot row. Quantity is kept as typed by the operator.
type Balance struct {
	ProductID string `json:"productId"`
	Location  string `json:"location"`
	Quantity  any    `json:"quantity"`
}

// Movement is one ledger row. CreatedAt is the server-assigned instant;
// Date is the free-text fallback.
type Movement struct {
	ID         string     `json:"id"`
	Origin     string     `json:"origin"`
	ProductID  string     `json:"productId"`
	Location   string     `json:"location"`
	Quantity   any        `json:"quantity"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	Date       string     `json:"date,omitempty"`
	InvoiceRef string     `json:"invoiceRef,omitempty"`
}

// DataSet is a snapshot and the three ledgers.
type DataSet struct {
	Balances  []Balance  `json:"balances"`
	Movements []Movement `json:"movements"`
}

// Load reads a JSON data set. Numbers keep their exact decimal text.
func Load(path string) (DataSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DataSet{}, fmt.Errorf("read fixture: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var ds DataSet
	if err := dec.Decode(&ds); err != nil {
		return DataSet{}, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return ds, nil
}

// Demo returns a small data set around the month before now: stock at two
// locations, one movement of each origin, a dispatch without an invoice and
// a record dated only by text.
func Demo(now time.Time, loc *time.Location) DataSet {
	now = now.In(loc)
	at := func(monthOffset, day int) *time.Time {
		t := time.Date(now.Year(), now.Month()+time.Month(monthOffset), day, 11, 0, 0, 0, loc)
		return &t
	}
	lastMonthText := time.Date(now.Year(), now.Month()-1, 20, 0, 0, 0, 0, loc).Format("02/01/2006")

	return DataSet{
		Balances: []Balance{
			{ProductID: "ACETONE", Location: "CHENNAI", Quantity: "100"},
			{ProductID: "TOLUENE", Location: "CHENNAI", Quantity: "40"},
			{ProductID: "ACETONE", Location: "MUNDRA", Quantity: "1,250.5"},
			{ProductID: "METHANOL", Location: "MUNDRA", Quantity: "n/a"},
		},
		Movements: []Movement{
			{ID: "imp-1", Origin: string(ledger.OriginImport), ProductID: "ACETONE", Location: "CHENNAI", Quantity: "30", CreatedAt: at(-1, 5)},
			{ID: "dsp-1", Origin: string(ledger.OriginDispatch), ProductID: "ACETONE", Location: "CHENNAI", Quantity: "20", CreatedAt: at(-1, 12), InvoiceRef: "INV-1001"},
			{ID: "imp-2", Origin: string(ledger.OriginImport), ProductID: "ACETONE", Location: "CHENNAI", Quantity: "10", CreatedAt: at(0, 1)},
			{ID: "lp-1", Origin: string(ledger.OriginLocalPurchase), ProductID: "TOLUENE", Location: "chennai", Quantity: "15", Date: lastMonthText, InvoiceRef: "PO-77"},
			{ID: "dsp-2", Origin: string(ledger.OriginDispatch), ProductID: "ACETONE", Location: "MUNDRA", Quantity: "250.5", CreatedAt: at(-1, 25)},
		},
	}
}

// Snapshot converts the balances.
func (ds DataSet) Snapshot() ledger.Snapshot {
	out := make(ledger.Snapshot, 0, len(ds.Balances))
	for _, b := range ds.Balances {
		out = append(out, ledger.BalanceEntry{
			ProductID: ledger.NormalizeProduct(b.ProductID),
			Location:  ledger.NormalizeLocation(b.Location),
			Quantity:  ledger.NewAmount(b.Quantity),
		})
	}
	return out
}

// Events converts the movements of one origin. loc is the zone text dates are read in.
func (ds DataSet) Events(origin ledger.Origin, loc *time.Location) []ledger.MovementEvent {
	var out []ledger.MovementEvent
	for _, m := range ds.Movements {
		if ledger.Origin(m.Origin) != origin {
			continue
		}
		var created time.Time
		if m.CreatedAt != nil {
			created = m.CreatedAt.In(loc)
		}
		ts, source := ledger.ResolveTimestamp(created, m.Date, loc)
		out = append(out, ledger.MovementEvent{
			ID:              m.ID,
			ProductID:       ledger.NormalizeProduct(m.ProductID),
			Location:        ledger.NormalizeLocation(m.Location),
			Quantity:        ledger.NewAmount(m.Quantity),
			Timestamp:       ts,
			TimestampSource: source,
			Origin:          origin,
			InvoiceRef:      ledger.NormalizeInvoiceRef(m.InvoiceRef),
		})
	}
	return out
}

// Pipes are in-process sources primed with a data set. Send a new data set
// to replace every feed at once.
type Pipes struct {
	Snapshot       *feed.Pipe[ledger.Snapshot]
	Imports        *feed.Pipe[[]ledger.MovementEvent]
	LocalPurchases *feed.Pipe[[]ledger.MovementEvent]
	Dispatches     *feed.Pipe[[]ledger.MovementEvent]
	loc            *time.Location
}

// NewPipes creates pipes primed with ds.
func NewPipes(ds DataSet, loc *time.Location) *Pipes {
	if loc == nil {
		loc = time.UTC
	}
	p := &Pipes{
		Snapshot:       feed.NewPipe[ledger.Snapshot](),
		Imports:        feed.NewPipe[[]ledger.MovementEvent](),
		LocalPurchases: feed.NewPipe[[]ledger.MovementEvent](),
		Dispatches:     feed.NewPipe[[]ledger.MovementEvent](),
		loc:            loc,
	}
	p.Send(ds)
	return p
}

// Send publishes ds on every pipe.
func (p *Pipes) Send(ds DataSet) {
	p.Snapshot.Send(ds.Snapshot())
	p.Imports.Send(ds.Events(ledger.OriginImport, p.loc))
	p.LocalPurchases.Send(ds.Events(ledger.OriginLocalPurchase, p.loc))
	p.Dispatches.Send(ds.Events(ledger.OriginDispatch, p.loc))
}

// Sources returns the pipes as feed sources.
func (p *Pipes) Sources() feed.Sources {
	return feed.Sources{
		Snapshot:       p.Snapshot,
		Imports:        p.Imports,
		LocalPurchases: p.LocalPurchases,
		Dispatches:     p.Dispatches,
	}
}

// Close closes every pipe.
func (p *Pipes) Close() {
	p.Snapshot.Close()
	p.Imports.Close()
	p.LocalPurchases.Close()
	p.Dispatches.Close()
}
