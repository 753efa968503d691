package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemdash/internal/core/apperror"
	"chemdash/internal/core/period"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/internal/domain/reports"
	"chemdash/pkg/logger"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// fakeViews publishes views by hand.
type fakeViews struct {
	mu      sync.Mutex
	current *feed.View
	subs    []chan *feed.View
}

func (f *fakeViews) Current() *feed.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeViews) Subscribe() (<-chan *feed.View, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *feed.View, 8)
	if f.current != nil {
		ch <- f.current
	}
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeViews) publish(v *feed.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = v
	for _, ch := range f.subs {
		ch <- v
	}
}

// stop closes every subscription, as a stopped merger does.
func (f *fakeViews) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func testView(version uint64) *feed.View {
	ts := time.Date(2026, time.September, 10, 10, 0, 0, 0, ist)
	return &feed.View{
		Snapshot: ledger.Snapshot{
			{ProductID: "ACETONE", Location: "CHENNAI", Quantity: ledger.MustAmount("100")},
			{ProductID: "ACETONE", Location: "MUNDRA", Quantity: ledger.MustAmount("50")},
		},
		AllEvents: []ledger.MovementEvent{
			{ID: "i1", ProductID: "ACETONE", Location: "CHENNAI", Origin: ledger.OriginImport,
				Quantity: ledger.MustAmount("25"), Timestamp: ts, TimestampSource: ledger.TimestampServer},
		},
		Version: version,
	}
}

func newBoard(t *testing.T, views *fakeViews) *Board {
	t.Helper()
	svc := reports.NewService(views, reports.Config{
		Location: ist,
		Clock:    func() time.Time { return time.Date(2026, time.October, 14, 12, 0, 0, 0, ist) },
	})
	return NewBoard(views, svc, logger.Nop())
}

func TestBoard_StartsAtCurrentMonth(t *testing.T) {
	b := newBoard(t, &fakeViews{})
	sel, gen := b.Selection()
	assert.Equal(t, "2026-10", sel.Month.String())
	assert.Zero(t, gen)
	_, ok := b.Panel()
	assert.False(t, ok)
}

func TestBoard_NavigationIsCapped(t *testing.T) {
	views := &fakeViews{current: testView(1)}
	b := newBoard(t, views)
	ctx := context.Background()

	assert.Equal(t, "2026-10", b.Next(ctx).Month.String())
	assert.Equal(t, "2026-09", b.Prev(ctx).Month.String())
	assert.Equal(t, "2026-08", b.Prev(ctx).Month.String())
	assert.Equal(t, "2026-09", b.Next(ctx).Month.String())
	assert.Equal(t, "2026-10", b.Next(ctx).Month.String())
	assert.Equal(t, "2026-10", b.Next(ctx).Month.String())

	_, gen := b.Selection()
	assert.Equal(t, uint64(6), gen)
}

func TestBoard_SelectRejectsFuture(t *testing.T) {
	b := newBoard(t, &fakeViews{current: testView(1)})

	_, err := b.Select(context.Background(), period.NewMonth(2026, time.November, ist))
	assert.True(t, apperror.IsCode(err, apperror.CodeFuturePeriod))

	sel, err := b.Select(context.Background(), period.NewMonth(2026, time.September, ist))
	require.NoError(t, err)
	assert.Equal(t, "2026-09", sel.Month.String())
}

func TestBoard_PublishesPanelOnSelection(t *testing.T) {
	views := &fakeViews{current: testView(3)}
	b := newBoard(t, views)
	ctx := context.Background()

	b.Prev(ctx)
	p, ok := b.Panel()
	require.True(t, ok)
	assert.Equal(t, "2026-09", p.Month)
	assert.Equal(t, uint64(3), p.Version)
	require.Len(t, p.Cards.Cards, 2)
	assert.Equal(t, "100", p.Cards.Cards[0].Closing.String())
	assert.Equal(t, "75", p.Cards.Cards[0].Opening.String())
	assert.Nil(t, p.Product)

	b.SelectProduct(ctx, "ACETONE", "CHENNAI")
	p, _ = b.Panel()
	require.NotNil(t, p.Product)
	assert.Equal(t, "ACETONE", p.Product.ProductID)
	assert.Equal(t, "75", p.Product.Opening.String())
	assert.True(t, p.Product.Dispatch.IsZero())
	assert.Equal(t, "100", p.Product.Total.String())
	assert.Equal(t, "100", p.Product.Current.String())

	b.SelectProduct(ctx, "", "")
	p, _ = b.Panel()
	assert.Nil(t, p.Product)
}

func TestBoard_DropsStaleResults(t *testing.T) {
	views := &fakeViews{current: testView(1)}
	b := newBoard(t, views)
	ctx := context.Background()

	sel, gen := b.Selection()
	stale, err := b.compute(ctx, views.Current(), sel, gen)
	require.NoError(t, err)

	b.Prev(ctx) // selection moves on while the old result is in flight

	assert.False(t, b.publish(ctx, stale))
	assert.Equal(t, uint64(1), b.Dropped())

	p, ok := b.Panel()
	require.True(t, ok)
	assert.Equal(t, "2026-09", p.Month)
}

func TestBoard_DropsOlderViewForSameSelection(t *testing.T) {
	views := &fakeViews{current: testView(5)}
	b := newBoard(t, views)
	ctx := context.Background()
	b.Prev(ctx)

	sel, gen := b.Selection()
	older, err := b.compute(ctx, testView(4), sel, gen)
	require.NoError(t, err)
	assert.False(t, b.publish(ctx, older))

	p, _ := b.Panel()
	assert.Equal(t, uint64(5), p.Version)
}

func TestBoard_RunFollowsViews(t *testing.T) {
	views := &fakeViews{}
	b := newBoard(t, views)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	panels, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	// not ready views are skipped
	views.publish(&feed.View{Pending: []feed.Name{feed.NameSnapshot}, Version: 1})
	views.publish(testView(2))

	select {
	case p := <-panels:
		assert.Equal(t, uint64(2), p.Version)
		assert.Equal(t, "2026-10", p.Month)
	case <-time.After(2 * time.Second):
		t.Fatal("no panel published")
	}

	cancel()
	<-done
}

func TestBoard_RunClosesSubscriptionsWhenViewsStop(t *testing.T) {
	views := &fakeViews{current: testView(1)}
	b := newBoard(t, views)
	panels, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(context.Background())
	}()

	<-panels // first refresh
	views.stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	_, ok := <-panels
	assert.False(t, ok)

	late, unsubscribeLate := b.Subscribe()
	defer unsubscribeLate()
	p, ok := <-late
	require.True(t, ok)
	assert.Equal(t, uint64(1), p.Version)
	_, ok = <-late
	assert.False(t, ok)
}

type memQualityLog struct {
	entries []QualityEntry
	err     error
}

func (m *memQualityLog) Append(_ context.Context, e QualityEntry) error {
	m.entries = append(m.entries, e)
	return m.err
}

type countingRecorder struct{ calls int }

func (c *countingRecorder) RecordQuality(context.Context, ledger.QualityReport) { c.calls++ }

func TestQualityMonitor_PersistsOnChangeOnly(t *testing.T) {
	store := &memQualityLog{}
	rec := &countingRecorder{}
	q := NewQualityMonitor(rec, store, logger.Nop())
	ctx := context.Background()

	q.Observe(ctx, &feed.View{Pending: []feed.Name{feed.NameImports}})
	_, ok := q.Latest()
	assert.False(t, ok)

	clean := testView(1)
	q.Observe(ctx, clean)
	q.Observe(ctx, testView(2))
	require.Len(t, store.entries, 1)

	dirty := testView(3)
	dirty.AllEvents = append(dirty.AllEvents, ledger.MovementEvent{
		ID: "d1", Location: "CHENNAI", Origin: ledger.OriginDispatch,
		Quantity: ledger.NewAmount("?"), Timestamp: ledger.Epoch, TimestampSource: ledger.TimestampEpoch,
	})
	q.Observe(ctx, dirty)

	require.Len(t, store.entries, 2)
	assert.Equal(t, uint64(3), store.entries[1].Version)
	assert.Equal(t, 3, rec.calls)

	snap, ok := q.Latest()
	require.True(t, ok)
	assert.False(t, snap.Clean)
	assert.Equal(t, 1, snap.Report.UninvoicedDispatches.Count)
	assert.Equal(t, 1, snap.Report.EpochTimestamps.Count)
	assert.Equal(t, 1, snap.Report.InvalidQuantities.Count)
}

func TestQualityMonitor_StoreErrorIsNotFatal(t *testing.T) {
	store := &memQualityLog{err: errors.New("db down")}
	q := NewQualityMonitor(nil, store, logger.Nop())

	q.Observe(context.Background(), testView(1))
	snap, ok := q.Latest()
	require.True(t, ok)
	assert.True(t, snap.Clean)
}
