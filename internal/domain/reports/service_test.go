package reports

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chemdash/internal/core/apperror"
	"chemdash/internal/core/period"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/internal/domain/reconstruct"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type staticViews struct{ v *feed.View }

func (s staticViews) Current() *feed.View { return s.v }

type recordingObserver struct {
	scopes []string
}

func (o *recordingObserver) Reconstructed(_ context.Context, scope string, _ period.Month, _ reconstruct.Quality) {
	o.scopes = append(o.scopes, scope)
}

func newTestService(v *feed.View) *Service {
	return NewService(staticViews{v}, Config{
		Location: ist,
		Clock:    func() time.Time { return time.Date(2026, time.October, 14, 9, 30, 0, 0, ist) },
	})
}

func entry(product, location, qty string) ledger.BalanceEntry {
	return ledger.BalanceEntry{ProductID: product, Location: location, Quantity: ledger.NewAmount(qty)}
}

func mv(id, product, location string, origin ledger.Origin, ref, qty string, ts time.Time) ledger.MovementEvent {
	return ledger.MovementEvent{
		ID: id, ProductID: product, Location: location, Origin: origin, InvoiceRef: ref,
		Quantity: ledger.NewAmount(qty), Timestamp: ts, TimestampSource: ledger.TimestampServer,
	}
}

func day(m time.Month, d int) time.Time { return time.Date(2026, m, d, 11, 0, 0, 0, ist) }

func march() period.Month { return period.NewMonth(2026, time.March, ist) }

func scenarioView() *feed.View {
	return &feed.View{
		Snapshot: ledger.Snapshot{
			entry("ACETONE", "CHENNAI", "60"),
			entry("TOLUENE", "CHENNAI", "40"),
			entry("ACETONE", "MUNDRA", "15"),
		},
		AllEvents: []ledger.MovementEvent{
			mv("i1", "ACETONE", "CHENNAI", ledger.OriginImport, "", "30", day(time.March, 5)),
			mv("d1", "TOLUENE", "chennai", ledger.OriginDispatch, "INV-1", "20", day(time.March, 9)),
			mv("i2", "TOLUENE", "CHENNAI", ledger.OriginImport, "", "10", day(time.April, 2)),
			mv("l1", "ACETONE", "MUNDRA", ledger.OriginLocalPurchase, "PO-1", "5", day(time.March, 1)),
		},
	}
}

func TestLocationTurnover_WorkedScenario(t *testing.T) {
	s := newTestService(scenarioView())
	v, err := s.View(context.Background())
	require.NoError(t, err)

	got, err := s.LocationTurnover(context.Background(), v, " Chennai ", march())
	require.NoError(t, err)

	assert.Equal(t, "CHENNAI", got.Location)
	assert.Equal(t, "2026-03", got.Month)
	assert.Equal(t, "90.00", got.Closing.StringFixed(2))
	assert.Equal(t, "30.00", got.Inflow.StringFixed(2))
	assert.Equal(t, "20.00", got.Outflow.StringFixed(2))
	assert.Equal(t, "80.00", got.Opening.StringFixed(2))
	assert.Equal(t, "100.00", got.Current.StringFixed(2))
	assert.Empty(t, got.ProductID)
}

func TestProductTurnoverAndStat(t *testing.T) {
	s := newTestService(scenarioView())
	v := scenarioView()

	got, err := s.ProductTurnover(context.Background(), v, "TOLUENE", "CHENNAI", march())
	require.NoError(t, err)
	assert.Equal(t, "TOLUENE", got.ProductID)
	assert.Equal(t, "30", got.Closing.String())
	assert.Equal(t, "50", got.Opening.String())

	stat, err := s.ProductStat(context.Background(), v, "TOLUENE", "CHENNAI", march())
	require.NoError(t, err)
	assert.Equal(t, "40", stat.Current.String())
	assert.Equal(t, "50", stat.Opening.String())
	assert.Equal(t, "20", stat.Dispatch.String())
	assert.Equal(t, "50", stat.Total.String())
}

func TestProductTurnover_RequiresScope(t *testing.T) {
	s := newTestService(scenarioView())
	v := scenarioView()

	_, err := s.ProductTurnover(context.Background(), v, " ", "CHENNAI", march())
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = s.LocationTurnover(context.Background(), v, "", march())
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestTurnover_FutureMonth(t *testing.T) {
	s := newTestService(scenarioView())
	_, err := s.LocationTurnover(context.Background(), scenarioView(), "CHENNAI", period.NewMonth(2026, time.November, ist))
	assert.True(t, apperror.IsCode(err, apperror.CodeFuturePeriod))
}

func TestTurnover_ZeroMonthIsCurrent(t *testing.T) {
	s := newTestService(scenarioView())
	got, err := s.LocationTurnover(context.Background(), scenarioView(), "CHENNAI", period.Month{})
	require.NoError(t, err)
	assert.Equal(t, "2026-10", got.Month)
	assert.Equal(t, "100", got.Closing.String())
}

func TestLocationBreakdown_RowsAddUp(t *testing.T) {
	s := newTestService(scenarioView())

	b, err := s.LocationBreakdown(context.Background(), scenarioView(), "CHENNAI", march())
	require.NoError(t, err)

	require.Len(t, b.Rows, 2)
	assert.Equal(t, "ACETONE", b.Rows[0].ProductID)
	assert.Equal(t, "TOLUENE", b.Rows[1].ProductID)
	assertRowsAddUp(t, b)
}

func TestLocationCards_Defaults(t *testing.T) {
	v := scenarioView()
	v.Degraded = true
	v.Version = 7
	s := newTestService(v)

	cards, err := s.LocationCards(context.Background(), v, nil, march())
	require.NoError(t, err)

	assert.True(t, cards.Degraded)
	assert.Equal(t, uint64(7), cards.Version)
	require.Len(t, cards.Cards, 2)
	assert.Equal(t, "CHENNAI", cards.Cards[0].Location)
	assert.Equal(t, "MUNDRA", cards.Cards[1].Location)
	assert.Equal(t, "15", cards.Cards[1].Closing.String())
	assert.Equal(t, "10", cards.Cards[1].Opening.String())
}

func TestEvents_FilterAndDirection(t *testing.T) {
	v := scenarioView()
	v.AllEvents = append(v.AllEvents, mv("d2", "ACETONE", "CHENNAI", ledger.OriginDispatch, "", "oops", day(time.March, 11)))
	s := newTestService(v)

	rows, err := s.Events(v, EventFilter{Location: "chennai"})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "i1", rows[0].ID)
	assert.Equal(t, ledger.DirectionIn, rows[0].Direction)
	assert.Equal(t, ledger.DirectionOut, rows[1].Direction)
	assert.Equal(t, "20", rows[1].Quantity.String())

	last := rows[3]
	assert.Equal(t, "d2", last.ID)
	assert.True(t, last.Ambiguous)
	assert.False(t, last.ValidQuantity)
	assert.Equal(t, ledger.DirectionIn, last.Direction)

	rows, err = s.Events(v, EventFilter{Location: "CHENNAI", ProductID: "TOLUENE", Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "d1", rows[0].ID)

	_, err = s.Events(nil, EventFilter{})
	assert.True(t, apperror.IsCode(err, apperror.CodeFeedUnavailable))
}

func TestView_NotReady(t *testing.T) {
	s := newTestService(&feed.View{Pending: []feed.Name{feed.NameDispatches}})
	_, err := s.View(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeFeedUnavailable))
	assert.Equal(t, 503, apperror.Problem(err).HTTPStatus)
}

func TestNavigate(t *testing.T) {
	s := newTestService(nil)

	nav, err := s.Navigate(march())
	require.NoError(t, err)
	assert.Equal(t, "2026-02", nav.Prev)
	assert.Equal(t, "2026-04", nav.Next)
	assert.True(t, nav.HasNext)

	nav, err = s.Navigate(s.CurrentMonth())
	require.NoError(t, err)
	assert.Equal(t, "2026-10", nav.Next)
	assert.False(t, nav.HasNext)

	_, err = s.Navigate(period.NewMonth(2027, time.January, ist))
	assert.True(t, apperror.IsCode(err, apperror.CodeFuturePeriod))
}

func TestParseMonth(t *testing.T) {
	s := newTestService(nil)

	m, err := s.ParseMonth("")
	require.NoError(t, err)
	assert.Equal(t, "2026-10", m.String())

	m, err = s.ParseMonth("2025-12")
	require.NoError(t, err)
	assert.Equal(t, "2025-12", m.String())

	_, err = s.ParseMonth("12/2025")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestObserverReceivesEveryScope(t *testing.T) {
	obs := &recordingObserver{}
	s := NewService(nil, Config{Location: ist, Observer: obs, Clock: func() time.Time { return day(time.October, 1) }})

	_, err := s.LocationBreakdown(context.Background(), scenarioView(), "CHENNAI", march())
	require.NoError(t, err)
	assert.Equal(t, []string{"CHENNAI", "ACETONE@CHENNAI", "TOLUENE@CHENNAI"}, obs.scopes)
}

func randomView(seed int64) *feed.View {
	r := rand.New(rand.NewSource(seed))
	products := []string{"ACETONE", "TOLUENE", "XYLENE", "IPA", ""}
	locations := []string{"CHENNAI", "chennai ", "MUNDRA"}
	origins := ledger.Origins

	v := &feed.View{}
	for _, p := range products {
		for _, l := range locations {
			v.Snapshot = append(v.Snapshot, entry(p, l, decimal.New(r.Int63n(1_000_000), -3).String()))
		}
	}
	v.Snapshot = append(v.Snapshot, entry("IPA", "CHENNAI", "bad"))

	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, ist)
	for i := 0; i < 500; i++ {
		ref := ""
		if r.Intn(2) == 0 {
			ref = fmt.Sprintf("INV-%d", i)
		}
		ts := start.Add(time.Duration(r.Int63n(int64(490 * 24 * time.Hour))))
		qty := decimal.New(r.Int63n(10_000_000), -4).String()
		if r.Intn(40) == 0 {
			qty = "n/a"
		}
		v.AllEvents = append(v.AllEvents, mv(fmt.Sprintf("e%d", i),
			products[r.Intn(len(products))], locations[r.Intn(len(locations))],
			origins[r.Intn(len(origins))], ref, qty, ts))
	}
	return v
}

func assertRowsAddUp(t *testing.T, b Breakdown) {
	t.Helper()
	var opening, inflow, outflow, closing decimal.Decimal
	for _, row := range b.Rows {
		opening = opening.Add(row.Exact.Opening)
		inflow = inflow.Add(row.Exact.Inflow)
		outflow = outflow.Add(row.Exact.Outflow)
		closing = closing.Add(row.Exact.Closing)
	}
	assert.True(t, b.Total.Exact.Opening.Equal(opening), "%s opening %s != %s", b.Month, opening, b.Total.Exact.Opening)
	assert.True(t, b.Total.Exact.Inflow.Equal(inflow), "%s inflow %s != %s", b.Month, inflow, b.Total.Exact.Inflow)
	assert.True(t, b.Total.Exact.Outflow.Equal(outflow), "%s outflow %s != %s", b.Month, outflow, b.Total.Exact.Outflow)
	assert.True(t, b.Total.Exact.Closing.Equal(closing), "%s closing %s != %s", b.Month, closing, b.Total.Exact.Closing)
}

func TestCrossConsistency(t *testing.T) {
	v := randomView(3)
	s := newTestService(v)

	for m := period.NewMonth(2025, time.June, ist); !m.After(s.CurrentMonth()); m = m.Next() {
		for _, loc := range []string{"CHENNAI", "MUNDRA"} {
			b, err := s.LocationBreakdown(context.Background(), v, loc, m)
			require.NoError(t, err)
			assertRowsAddUp(t, b)

			// rounded rows agree with the rounded total within a cent per row
			var rounded decimal.Decimal
			for _, row := range b.Rows {
				rounded = rounded.Add(row.Closing)
			}
			tolerance := decimal.New(int64(len(b.Rows)), -2)
			assert.True(t, rounded.Sub(b.Total.Closing).Abs().LessThanOrEqual(tolerance))
		}
	}
}
