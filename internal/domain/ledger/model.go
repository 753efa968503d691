// Package ledger defines stock movement events, the current balance snapshot
// and the rules that derive a direction and a timestamp for each event.
// Events and snapshot entries are immutable facts owned by the feeds;
// nothing in this module mutates them.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"chemdash/internal/core/types"
)

// Origin identifies which ledger feed produced an event.
type Origin string

const (
	// OriginImport is an inbound shipment cleared through customs.
	OriginImport Origin = "IMPORT"
	// OriginLocalPurchase is an inbound purchase from a domestic supplier.
	OriginLocalPurchase Origin = "LOCAL_PURCHASE"
	// OriginDispatch is an outbound dispatch, usually backed by an invoice.
	OriginDispatch Origin = "DISPATCH"
)

// Origins lists all origins in feed order.
var Origins = []Origin{OriginImport, OriginLocalPurchase, OriginDispatch}

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginImport, OriginLocalPurchase, OriginDispatch:
		return true
	}
	return false
}

// Direction is derived per event by a Classifier and never stored.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Amount is a quantity as received from a feed.
// Raw keeps the original text when the value could not be parsed.
type Amount struct {
	Value decimal.Decimal
	Raw   string
	Valid bool
}

// NewAmount parses a loosely typed feed value. Unparsable input yields an
// invalid Amount with a zero Value.
func NewAmount(v any) Amount {
	d, ok := types.ParseQuantity(v)
	if ok {
		return Amount{Value: d, Valid: true}
	}
	a := Amount{Value: decimal.Zero}
	if v != nil {
		a.Raw = fmt.Sprint(v)
	}
	return a
}

// AmountOf wraps an already parsed decimal.
func AmountOf(d decimal.Decimal) Amount {
	return Amount{Value: d, Valid: true}
}

// MustAmount parses s and panics on failure. Use only for constants and tests.
func MustAmount(s string) Amount {
	return AmountOf(types.MustQuantity(s))
}

// Decimal returns the value and whether it was parsed.
// Invalid amounts return zero.
func (a Amount) Decimal() (decimal.Decimal, bool) {
	if !a.Valid {
		return decimal.Zero, false
	}
	return a.Value, true
}

// TimestampSource records which rule produced an event timestamp.
type TimestampSource string

const (
	// TimestampServer is a server-assigned creation instant.
	TimestampServer TimestampSource = "server"
	// TimestampText was parsed from the free-text date field.
	TimestampText TimestampSource = "text"
	// TimestampEpoch is the fallback when neither was usable.
	TimestampEpoch TimestampSource = "epoch"
)

// MovementEvent is one immutable stock change.
type MovementEvent struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	Location        string          `json:"location"`
	Quantity        Amount          `json:"-"`
	Timestamp       time.Time       `json:"timestamp"`
	TimestampSource TimestampSource `json:"timestampSource"`
	Origin          Origin          `json:"origin"`
	InvoiceRef      string          `json:"invoiceRef,omitempty"`
}

// HasInvoiceRef reports whether the event carries an invoice reference.
// A blank or whitespace-only reference counts as none.
func (e MovementEvent) HasInvoiceRef() bool {
	return NormalizeInvoiceRef(e.InvoiceRef) != ""
}

// SignedQuantity returns the quantity with sign based on direction.
// In = positive, Out = negative. Invalid quantities contribute zero.
func (e MovementEvent) SignedQuantity(dir Direction) decimal.Decimal {
	q, _ := e.Quantity.Decimal()
	if dir == DirectionOut {
		return q.Neg()
	}
	return q
}

// BalanceEntry is the current stock for one product at one location.
type BalanceEntry struct {
	ProductID string `json:"productId"`
	Location  string `json:"location"`
	Quantity  Amount `json:"-"`
}

// Snapshot is the authoritative "as of now" stock, replaced wholesale on every update.
type Snapshot []BalanceEntry

// Total sums the entries matching scope. Invalid quantities contribute zero and are
// returned as "productId@location" keys so callers can flag them.
func (s Snapshot) Total(scope Scope) (decimal.Decimal, []string) {
	total := decimal.Zero
	var invalid []string
	for _, b := range s {
		if !scope.MatchEntry(b) {
			continue
		}
		q, ok := b.Quantity.Decimal()
		if !ok {
			invalid = append(invalid, b.ProductID+"@"+b.Location)
			continue
		}
		total = total.Add(q)
	}
	return total, invalid
}

// Balance is the current quantity of one product at one location.
// Duplicate entries are summed.
func (s Snapshot) Balance(productID, location string) decimal.Decimal {
	total, _ := s.Total(ProductScope(productID, location))
	return total
}

// LocationBalance is the current quantity of all products at location.
func (s Snapshot) LocationBalance(location string) decimal.Decimal {
	total, _ := s.Total(LocationScope(location))
	return total
}

// Products returns the distinct product ids present at location, in first-seen order.
func (s Snapshot) Products(location string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range s {
		if !SameLocation(b.Location, location) {
			continue
		}
		p := NormalizeProduct(b.ProductID)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Scope selects snapshot entries and events for one location and either one
// product or every product.
type Scope struct {
	ProductID    string
	Location     string
	EveryProduct bool
}

// LocationScope returns the cross-product scope for location.
func LocationScope(location string) Scope {
	return Scope{Location: location, EveryProduct: true}
}

// ProductScope returns the scope for one product at one location.
// An empty productID selects records without a product id.
func ProductScope(productID, location string) Scope {
	return Scope{ProductID: productID, Location: location}
}

// AllProducts reports whether the scope spans every product at the location.
func (s Scope) AllProducts() bool {
	return s.EveryProduct
}

// MatchEvent reports whether e belongs to the scope.
func (s Scope) MatchEvent(e MovementEvent) bool {
	if !SameLocation(e.Location, s.Location) {
		return false
	}
	return s.AllProducts() || NormalizeProduct(e.ProductID) == NormalizeProduct(s.ProductID)
}

// MatchEntry reports whether b belongs to the scope.
func (s Scope) MatchEntry(b BalanceEntry) bool {
	if !SameLocation(b.Location, s.Location) {
		return false
	}
	return s.AllProducts() || NormalizeProduct(b.ProductID) == NormalizeProduct(s.ProductID)
}

// String returns "location" or "product@location".
func (s Scope) String() string {
	if s.AllProducts() {
		return NormalizeLocation(s.Location)
	}
	return NormalizeProduct(s.ProductID) + "@" + NormalizeLocation(s.Location)
}

// FilterEvents returns the events that belong to scope, preserving order.
func FilterEvents(events []MovementEvent, scope Scope) []MovementEvent {
	out := make([]MovementEvent, 0, len(events))
	for _, e := range events {
		if scope.MatchEvent(e) {
			out = append(out, e)
		}
	}
	return out
}

// ProductsAt returns the distinct product ids that appear in events at location.
func ProductsAt(events []MovementEvent, location string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range events {
		if !SameLocation(e.Location, location) {
			continue
		}
		p := NormalizeProduct(e.ProductID)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// NormalizeLocation trims and upper-cases a location name.
func NormalizeLocation(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeProduct trims a product id. Product ids are case-sensitive.
func NormalizeProduct(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeInvoiceRef trims an invoice reference.
func NormalizeInvoiceRef(s string) string {
	return strings.TrimSpace(s)
}

// SameLocation compares location names ignoring case and surrounding spaces.
func SameLocation(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
