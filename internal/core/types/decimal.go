// Package types provides common type aliases and utilities.
package types

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity is a stock quantity in metric tons with full precision.
// Uses decimal.Decimal to avoid floating-point errors when long ledgers are summed.
type Quantity = decimal.Decimal

// DisplayScale is the number of fractional digits shown to users.
const DisplayScale int32 = 2

// Zero returns zero Quantity value.
func Zero() Quantity {
	return decimal.Zero
}

// MustQuantity creates a Quantity from a string, panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round rounds q to DisplayScale digits for presentation.
func Round(q Quantity) Quantity {
	return q.Round(DisplayScale)
}

// ParseQuantity converts a loosely typed value coming from a feed into a Quantity.
// Feeds store quantities as numbers or as free text typed into forms,
// so strings like " 12.5 " and "1,250.000" are accepted.
// The second return value is false for nil, empty, non-numeric and non-finite input.
func ParseQuantity(v any) (Quantity, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return ParseQuantity(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int64:
		return decimal.NewFromInt(x), true
	case json.Number:
		return parseQuantityString(string(x))
	case string:
		return parseQuantityString(x)
	default:
		return decimal.Zero, false
	}
}

func parseQuantityString(s string) (Quantity, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	// Thousands separators are common in hand-typed values.
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
