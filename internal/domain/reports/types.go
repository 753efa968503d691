// Package reports provides the turnover views of the stock dashboard.
// Every view is a call of reconstruct.Reconstruct with a different scope.
package reports

import (
	"github.com/shopspring/decimal"

	"chemdash/internal/domain/ledger"
	"chemdash/internal/domain/reconstruct"
)

// --- Turnover ---

// Turnover is the monthly movement summary for one scope.
// Amounts are rounded to two decimals; Exact keeps full precision.
type Turnover struct {
	// ProductID is empty for a cross-product view.
	ProductID string `json:"productId,omitempty"`
	Location  string `json:"location"`
	Month     string `json:"month"`

	Opening decimal.Decimal `json:"opening"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Closing decimal.Decimal `json:"closing"`

	// Current is the snapshot total the reconstruction started from.
	Current decimal.Decimal `json:"current"`

	Quality reconstruct.Quality `json:"quality"`

	// InvalidBalances are snapshot keys whose quantity counted as zero.
	InvalidBalances []string `json:"invalidBalances,omitempty"`

	Exact reconstruct.Result `json:"-"`
}

// --- Location Breakdown ---

// Breakdown lists a turnover row for every product seen at a location.
// The rows add up to Total.
type Breakdown struct {
	Location string     `json:"location"`
	Month    string     `json:"month"`
	Rows     []Turnover `json:"rows"`
	Total    Turnover   `json:"total"`
}

// --- Summary Cards ---

// Card is a cross-product summary for one location.
type Card struct {
	Location string          `json:"location"`
	Month    string          `json:"month"`
	Opening  decimal.Decimal `json:"opening"`
	Inflow   decimal.Decimal `json:"inflow"`
	Outflow  decimal.Decimal `json:"outflow"`
	Closing  decimal.Decimal `json:"closing"`
}

// Cards is a set of location cards computed from one view.
type Cards struct {
	Month    string `json:"month"`
	Cards    []Card `json:"cards"`
	Degraded bool   `json:"degraded"`
	Version  uint64 `json:"version"`
}

// --- Product Stat ---

// ProductStat is the per-product block: current stock, opening balance,
// dispatched quantity and total available in the month (opening + inflow).
type ProductStat struct {
	ProductID string          `json:"productId"`
	Location  string          `json:"location"`
	Month     string          `json:"month"`
	Current   decimal.Decimal `json:"current"`
	Opening   decimal.Decimal `json:"opening"`
	Dispatch  decimal.Decimal `json:"dispatch"`
	Total     decimal.Decimal `json:"total"`
}

// --- Navigation ---

// Navigation gives the neighbours of a month. Next is capped at Current.
type Navigation struct {
	Month   string `json:"month"`
	Prev    string `json:"prev"`
	Next    string `json:"next"`
	Current string `json:"current"`
	HasNext bool   `json:"hasNext"`
}

// --- Events ---

// EventFilter selects merged events. Empty fields match everything.
type EventFilter struct {
	Location  string
	ProductID string
	// Limit caps the result; zero or negative means DefaultEventLimit.
	Limit int
}

// DefaultEventLimit is the page size of Events.
const DefaultEventLimit = 100

// EventRow is one merged ledger event with its derived direction.
type EventRow struct {
	ledger.MovementEvent
	Quantity      decimal.Decimal  `json:"quantity"`
	ValidQuantity bool             `json:"validQuantity"`
	Direction     ledger.Direction `json:"direction"`
	// Ambiguous marks dispatches without an invoice reference.
	Ambiguous bool `json:"ambiguous,omitempty"`
}
