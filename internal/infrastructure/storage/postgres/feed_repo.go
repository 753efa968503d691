package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"chemdash/internal/domain/ledger"
)

const (
	balancesTable  = "stock_balances"
	movementsTable = "stock_movements"
)

var (
	balanceColumns  = ColumnsOf[balanceRow]()
	movementColumns = ColumnsOf[movementRow]()
)

// balanceRow is one row of stock_balances. QuantityRaw keeps hand-entered
// text that failed the NUMERIC cast on ingest.
type balanceRow struct {
	ProductID   string              `db:"product_id"`
	Location    string              `db:"location"`
	Quantity    decimal.NullDecimal `db:"quantity"`
	QuantityRaw *string             `db:"quantity_raw"`
}

// movementRow is one row of stock_movements. CreatedAt is assigned by the
// database on insert; DateText is the free-text date typed by the operator.
type movementRow struct {
	ID          string              `db:"id"`
	Origin      string              `db:"origin"`
	ProductID   string              `db:"product_id"`
	Location    string              `db:"location"`
	Quantity    decimal.NullDecimal `db:"quantity"`
	QuantityRaw *string             `db:"quantity_raw"`
	CreatedAt   *time.Time          `db:"created_at"`
	DateText    *string             `db:"date_text"`
	InvoiceRef  *string             `db:"invoice_ref"`
}

// FeedRepo reads the balance snapshot and the movement ledgers.
type FeedRepo struct {
	txManager *TxManager
	loc       *time.Location
	builder   squirrel.StatementBuilderType
}

// NewFeedRepo creates a repository. loc is the zone free-text dates are read in.
func NewFeedRepo(txManager *TxManager, loc *time.Location) *FeedRepo {
	if loc == nil {
		loc = time.UTC
	}
	return &FeedRepo{
		txManager: txManager,
		loc:       loc,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LoadSnapshot reads every balance entry.
func (r *FeedRepo) LoadSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	sql, args, err := r.builder.
		Select(balanceColumns...).
		From(balancesTable).
		OrderBy("location", "product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []balanceRow
	err = r.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}

	snapshot := make(ledger.Snapshot, 0, len(rows))
	for _, row := range rows {
		snapshot = append(snapshot, row.toEntry())
	}
	return snapshot, nil
}

// LoadMovements reads every event of one ledger.
func (r *FeedRepo) LoadMovements(ctx context.Context, origin ledger.Origin) ([]ledger.MovementEvent, error) {
	sql, args, err := r.builder.
		Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"origin": string(origin)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []movementRow
	err = r.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("query %s movements: %w", origin, err)
	}

	events := make([]ledger.MovementEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toEvent(r.loc))
	}
	return events, nil
}

func (b balanceRow) toEntry() ledger.BalanceEntry {
	return ledger.BalanceEntry{
		ProductID: ledger.NormalizeProduct(b.ProductID),
		Location:  ledger.NormalizeLocation(b.Location),
		Quantity:  amountOf(b.Quantity, b.QuantityRaw),
	}
}

func (m movementRow) toEvent(loc *time.Location) ledger.MovementEvent {
	var created time.Time
	if m.CreatedAt != nil {
		created = m.CreatedAt.In(loc)
	}
	ts, source := ledger.ResolveTimestamp(created, deref(m.DateText), loc)

	return ledger.MovementEvent{
		ID:              m.ID,
		ProductID:       ledger.NormalizeProduct(m.ProductID),
		Location:        ledger.NormalizeLocation(m.Location),
		Quantity:        amountOf(m.Quantity, m.QuantityRaw),
		Timestamp:       ts,
		TimestampSource: source,
		Origin:          ledger.Origin(m.Origin),
		InvoiceRef:      ledger.NormalizeInvoiceRef(deref(m.InvoiceRef)),
	}
}

// amountOf prefers the NUMERIC column and falls back to the raw text.
func amountOf(q decimal.NullDecimal, raw *string) ledger.Amount {
	if q.Valid {
		return ledger.AmountOf(q.Decimal)
	}
	if raw == nil {
		return ledger.NewAmount(nil)
	}
	return ledger.NewAmount(*raw)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
