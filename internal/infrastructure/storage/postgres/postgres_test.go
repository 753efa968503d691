package postgres

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func strPtr(s string) *string { return &s }

func TestMovementRow_ToEvent(t *testing.T) {
	created := time.Date(2026, time.March, 31, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		row        movementRow
		wantSource ledger.TimestampSource
		wantTime   time.Time
		wantValid  bool
	}{
		{
			name: "server timestamp wins over text",
			row: movementRow{ID: "m1", Origin: "IMPORT", ProductID: " acetone ", Location: "chennai",
				Quantity: decimal.NewNullDecimal(decimal.RequireFromString("12.5")), CreatedAt: &created, DateText: strPtr("01-01-2020")},
			wantSource: ledger.TimestampServer,
			wantTime:   created,
			wantValid:  true,
		},
		{
			name: "text date read in dashboard zone",
			row: movementRow{ID: "m2", Origin: "DISPATCH", Location: "MUNDRA",
				QuantityRaw: strPtr("1,200"), DateText: strPtr("15/04/2026"), InvoiceRef: strPtr("INV-9")},
			wantSource: ledger.TimestampText,
			wantTime:   time.Date(2026, time.April, 15, 0, 0, 0, 0, ist),
			wantValid:  true,
		},
		{
			name:       "no usable date",
			row:        movementRow{ID: "m3", Origin: "LOCAL_PURCHASE", QuantityRaw: strPtr("n/a")},
			wantSource: ledger.TimestampEpoch,
			wantTime:   ledger.Epoch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.row.toEvent(ist)
			assert.Equal(t, tt.row.ID, e.ID)
			assert.Equal(t, tt.wantSource, e.TimestampSource)
			assert.True(t, tt.wantTime.Equal(e.Timestamp), "got %s", e.Timestamp)
			assert.Equal(t, tt.wantValid, e.Quantity.Valid)
		})
	}

	e := tests[0].row.toEvent(ist)
	assert.Equal(t, "acetone", e.ProductID)
	assert.Equal(t, "CHENNAI", e.Location)
	assert.Equal(t, "12.5", e.Quantity.Value.String())

	e = tests[1].row.toEvent(ist)
	assert.Equal(t, "INV-9", e.InvoiceRef)
	assert.Equal(t, "1200", e.Quantity.Value.String())
	assert.Equal(t, ledger.OriginDispatch, e.Origin)

	e = tests[2].row.toEvent(ist)
	assert.Equal(t, "n/a", e.Quantity.Raw)
}

func TestMovementRow_BlankInvoiceRef(t *testing.T) {
	e := movementRow{ID: "m4", Origin: "DISPATCH", InvoiceRef: strPtr("   ")}.toEvent(ist)
	assert.Empty(t, e.InvoiceRef)
	assert.False(t, e.HasInvoiceRef())
	assert.Equal(t, ledger.DirectionIn, ledger.LegacyClassifier.Classify(e))
}

func TestBalanceRow_ToEntry(t *testing.T) {
	valid := balanceRow{ProductID: "TOLUENE", Location: "mundra", Quantity: decimal.NewNullDecimal(decimal.NewFromInt(40))}
	e := valid.toEntry()
	assert.Equal(t, "MUNDRA", e.Location)
	assert.True(t, e.Quantity.Valid)
	assert.Equal(t, "40", e.Quantity.Value.String())

	missing := balanceRow{ProductID: "TOLUENE", Location: "MUNDRA"}
	assert.False(t, missing.toEntry().Quantity.Valid)
}

func TestQualityLog_EncodeDecode(t *testing.T) {
	l, err := NewQualityLog(nil)
	require.NoError(t, err)

	report := ledger.QualityReport{Events: 4, Balances: 2}
	report.EpochTimestamps = ledger.Issue{Count: 1, Sample: []string{"d1"}}
	entry := dashboard.QualityEntry{
		Fingerprint: report.Fingerprint(),
		Version:     7,
		ObservedAt:  time.Date(2026, time.October, 14, 9, 0, 0, 0, ist),
		Report:      report,
	}

	row, err := l.encode(entry)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.False(t, row.Clean)
	assert.NotEmpty(t, row.Report)

	back, err := l.decode(row)
	require.NoError(t, err)
	assert.Equal(t, report, back.Report)
	assert.Equal(t, uint64(7), back.Version)

	l.compressThreshold = 0
	row, err = l.encode(entry)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, []byte(row.Report))
	assert.NotEmpty(t, row.ReportCompressed)

	back, err = l.decode(row)
	require.NoError(t, err)
	assert.Equal(t, entry.Fingerprint, back.Report.Fingerprint())
	assert.True(t, entry.ObservedAt.Equal(back.ObservedAt))
}

func TestListener_DispatchRecoversPanics(t *testing.T) {
	l := NewListener(nil)
	var got []Notification

	l.AddListener(func(Notification) { panic("boom") })
	remove := l.AddListener(func(n Notification) { got = append(got, n) })

	l.dispatch(Notification{Channel: ChannelMovements, Payload: "IMPORT"})
	require.Len(t, got, 1)
	assert.Equal(t, "IMPORT", got[0].Payload)

	remove()
	l.dispatch(Notification{Channel: ChannelMovements})
	assert.Len(t, got, 1)
}

func TestListener_ListenSQL(t *testing.T) {
	sql := NewListener(nil).listenSQL()
	assert.True(t, strings.Contains(sql, `LISTEN "stock_balances_changed"`))
	assert.True(t, strings.Contains(sql, `LISTEN "stock_movements_changed"`))
}

func TestNotifySource_Matches(t *testing.T) {
	s := NewNotifySource[int]("imports", NewListener(nil), ChannelMovements, "IMPORT", 0, nil)

	assert.True(t, s.matches(Notification{Channel: ChannelMovements, Payload: "IMPORT"}))
	assert.True(t, s.matches(Notification{Channel: ChannelMovements}))
	assert.True(t, s.matches(Notification{Resync: true}))
	assert.False(t, s.matches(Notification{Channel: ChannelMovements, Payload: "DISPATCH"}))
	assert.False(t, s.matches(Notification{Channel: ChannelBalances, Payload: "IMPORT"}))
}

func next[T any](t *testing.T, ch <-chan feed.Update[T]) feed.Update[T] {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "source closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}
	return feed.Update[T]{}
}

func TestNotifySource_CoalescesBursts(t *testing.T) {
	listener := NewListener(nil)
	var loads atomic.Int32
	s := NewNotifySource(feed.NameImports, listener, ChannelMovements, "IMPORT", 30*time.Millisecond,
		func(context.Context) (int, error) { return int(loads.Add(1)), nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Watch(ctx)

	assert.Equal(t, 1, next(t, ch).Items)

	for i := 0; i < 3; i++ {
		listener.dispatch(Notification{Channel: ChannelMovements, Payload: "IMPORT"})
	}
	listener.dispatch(Notification{Channel: ChannelMovements, Payload: "DISPATCH"})

	assert.Equal(t, 2, next(t, ch).Items)

	select {
	case u := <-ch:
		t.Fatalf("unexpected reload %v", u.Items)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	for range ch {
	}
	assert.Equal(t, int32(2), loads.Load())
}

func TestNotifySource_RetriesAfterError(t *testing.T) {
	var loads atomic.Int32
	s := NewNotifySource(feed.NameSnapshot, NewListener(nil), ChannelBalances, "", 0,
		func(context.Context) (string, error) {
			if loads.Add(1) == 1 {
				return "", errors.New("connection refused")
			}
			return "ok", nil
		})
	s.retry = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Watch(ctx)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Err == nil {
				assert.Equal(t, "ok", u.Items)
				assert.GreaterOrEqual(t, loads.Load(), int32(2))
				return
			}
		case <-deadline:
			t.Fatal("source never recovered")
		}
	}
}

func TestSources_CoverAllFeeds(t *testing.T) {
	srcs := Sources(NewFeedRepo(nil, ist), NewListener(nil), time.Millisecond)
	assert.NotNil(t, srcs.Snapshot)
	assert.NotNil(t, srcs.Imports)
	assert.NotNil(t, srcs.LocalPurchases)
	assert.NotNil(t, srcs.Dispatches)

	imports := srcs.Imports.(*NotifySource[[]ledger.MovementEvent])
	assert.Equal(t, "IMPORT", imports.payload)
	assert.Equal(t, feed.NameImports, imports.name)
}

func TestQualityRow_ValuesMatchColumns(t *testing.T) {
	l, err := NewQualityLog(nil)
	require.NoError(t, err)
	row, err := l.encode(dashboard.QualityEntry{Version: 3, Report: ledger.QualityReport{Events: 1}})
	require.NoError(t, err)

	values := RowValues(row)
	require.Len(t, values, len(qualityColumns))
	assert.Equal(t, "id", qualityColumns[0])
	assert.Equal(t, row.ID, values[0])
	assert.Equal(t, "view_version", qualityColumns[2])
	assert.Equal(t, int64(3), values[2])
	assert.False(t, row.ObservedAt.IsZero())
}

func TestBuildBatch(t *testing.T) {
	b := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	batch, err := buildBatch([]squirrel.Sqlizer{
		b.Delete(movementsTable),
		b.Insert(balancesTable).Columns(balanceColumns...).Values("ACETONE", "CHENNAI", decimal.NewFromInt(5), nil),
	})
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, "DELETE FROM stock_movements", batch.QueuedQueries[0].SQL)
	assert.Equal(t, "INSERT INTO stock_balances (product_id,location,quantity,quantity_raw) VALUES ($1,$2,$3,$4)", batch.QueuedQueries[1].SQL)
	assert.Len(t, batch.QueuedQueries[1].Arguments, 4)

	_, err = buildBatch([]squirrel.Sqlizer{b.Insert(balancesTable)})
	assert.Error(t, err)
}
