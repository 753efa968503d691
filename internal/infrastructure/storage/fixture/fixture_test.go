package fixture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/pkg/logger"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"balances": [
			{"productId": "acetone", "location": "chennai", "quantity": 12.345},
			{"productId": "TOLUENE", "location": "MUNDRA", "quantity": "tbd"}
		],
		"movements": [
			{"id": "m1", "origin": "DISPATCH", "productId": "ACETONE", "location": "CHENNAI",
			 "quantity": "1,000", "date": "15/04/2026", "invoiceRef": "INV-7"}
		]
	}`), 0o600))

	ds, err := Load(path)
	require.NoError(t, err)

	snap := ds.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "acetone", snap[0].ProductID)
	assert.Equal(t, "CHENNAI", snap[0].Location)
	assert.Equal(t, "12.345", snap[0].Quantity.Value.String())
	assert.False(t, snap[1].Quantity.Valid)

	events := ds.Events(ledger.OriginDispatch, ist)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.TimestampText, events[0].TimestampSource)
	assert.True(t, time.Date(2026, time.April, 15, 0, 0, 0, 0, ist).Equal(events[0].Timestamp))
	assert.Equal(t, "1000", events[0].Quantity.Value.String())
	assert.Empty(t, ds.Events(ledger.OriginImport, ist))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"balances": [`), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestDemo_CoversEveryOrigin(t *testing.T) {
	ds := Demo(time.Date(2026, time.October, 14, 9, 0, 0, 0, ist), ist)

	for _, origin := range ledger.Origins {
		assert.NotEmpty(t, ds.Events(origin, ist), origin)
	}

	report := ledger.Audit(ds.Snapshot(), append(append(
		ds.Events(ledger.OriginImport, ist),
		ds.Events(ledger.OriginLocalPurchase, ist)...),
		ds.Events(ledger.OriginDispatch, ist)...))
	assert.False(t, report.Clean())
	assert.Equal(t, 1, report.InvalidBalances.Count)
	assert.Equal(t, 1, report.UninvoicedDispatches.Count)
	assert.Zero(t, report.EpochTimestamps.Count)
}

func TestPipes_FeedMerger(t *testing.T) {
	pipes := NewPipes(Demo(time.Now(), ist), ist)
	m := feed.NewMerger(pipes.Sources(), logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.Eventually(t, func() bool { return m.Current().Ready() }, 2*time.Second, 5*time.Millisecond)
	v := m.Current()
	assert.Len(t, v.Snapshot, 4)
	assert.Len(t, v.AllEvents, 5)
	assert.Len(t, v.Dispatches, 2)
}
