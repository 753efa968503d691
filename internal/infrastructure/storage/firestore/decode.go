package firestoreinfra

import (
	"fmt"
	"strings"
	"time"

	"chemdash/internal/domain/ledger"
)

// Document field names written by the stock, import, purchase and dispatch forms.
const (
	fieldProductID = "productId"
	fieldLocation  = "location"
	fieldQuantity  = "quantity"
)

// invoiceFields are the invoice reference field names seen across the
// three ledger forms, in lookup order.
var invoiceFields = []string{"invoiceRef", "invoiceNo", "invoiceNumber"}

// docData is the subset of a DocumentSnapshot the decoders read.
type docData struct {
	ID         string
	Data       map[string]any
	CreateTime time.Time
}

// decodeBalance maps a stock document. Documents without a productId field
// are keyed by their id.
func decodeBalance(d docData) ledger.BalanceEntry {
	product := stringField(d.Data, fieldProductID)
	if product == "" {
		product = d.ID
	}
	return ledger.BalanceEntry{
		ProductID: ledger.NormalizeProduct(product),
		Location:  ledger.NormalizeLocation(stringField(d.Data, fieldLocation)),
		Quantity:  ledger.NewAmount(d.Data[fieldQuantity]),
	}
}

// decodeEvent maps a ledger document. The server create time wins; the
// free-text dateField is read only when it is missing.
func decodeEvent(d docData, origin ledger.Origin, dateField string, loc *time.Location) ledger.MovementEvent {
	var text string
	switch v := d.Data[dateField].(type) {
	case time.Time:
		text = v.In(loc).Format(time.RFC3339Nano)
	case nil:
	default:
		text = fmt.Sprint(v)
	}
	created := d.CreateTime
	if !created.IsZero() {
		created = created.In(loc)
	}
	ts, source := ledger.ResolveTimestamp(created, text, loc)

	var invoice string
	for _, f := range invoiceFields {
		if invoice = stringField(d.Data, f); invoice != "" {
			break
		}
	}

	return ledger.MovementEvent{
		ID:              d.ID,
		ProductID:       ledger.NormalizeProduct(stringField(d.Data, fieldProductID)),
		Location:        ledger.NormalizeLocation(stringField(d.Data, fieldLocation)),
		Quantity:        ledger.NewAmount(d.Data[fieldQuantity]),
		Timestamp:       ts,
		TimestampSource: source,
		Origin:          origin,
		InvoiceRef:      ledger.NormalizeInvoiceRef(invoice),
	}
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
