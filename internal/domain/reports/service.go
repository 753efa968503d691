package reports

import (
	"context"
	"sort"
	"strings"
	"time"

	"chemdash/internal/core/apperror"
	"chemdash/internal/core/period"
	"chemdash/internal/core/types"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/internal/domain/reconstruct"
)

// DefaultLocations are the locations shown as summary cards.
var DefaultLocations = []string{"CHENNAI", "MUNDRA"}

// Clock returns the present instant.
type Clock func() time.Time

// ViewProvider returns the latest merged view.
type ViewProvider interface {
	Current() *feed.View
}

// Config configures a Service. Zero fields take defaults.
type Config struct {
	Classifier ledger.Classifier
	Location   *time.Location
	Clock      Clock
	Observer   reconstruct.Observer
	Locations  []string
}

// Service provides turnover views over a merged feed view.
type Service struct {
	views      ViewProvider
	classifier ledger.Classifier
	loc        *time.Location
	clock      Clock
	observer   reconstruct.Observer
	locations  []string
}

// NewService creates a new reports service.
func NewService(views ViewProvider, cfg Config) *Service {
	s := &Service{
		views:      views,
		classifier: cfg.Classifier,
		loc:        cfg.Location,
		clock:      cfg.Clock,
		observer:   cfg.Observer,
		locations:  cfg.Locations,
	}
	if s.classifier == nil {
		s.classifier = ledger.LegacyClassifier
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if len(s.locations) == 0 {
		s.locations = DefaultLocations
	}
	return s
}

// Locations returns the configured card locations.
func (s *Service) Locations() []string {
	return append([]string(nil), s.locations...)
}

// Classifier returns the direction policy in use.
func (s *Service) Classifier() ledger.Classifier { return s.classifier }

// TimeZone returns the zone months are evaluated in.
func (s *Service) TimeZone() *time.Location { return s.loc }

// CurrentMonth returns the month containing the clock's present instant.
func (s *Service) CurrentMonth() period.Month {
	return period.MonthOf(s.clock(), s.loc)
}

// ParseMonth parses "YYYY-MM" in the service time zone.
// An empty string selects the current month.
func (s *Service) ParseMonth(text string) (period.Month, error) {
	if strings.TrimSpace(text) == "" {
		return s.CurrentMonth(), nil
	}
	m, err := period.ParseMonth(text, s.loc)
	if err != nil {
		return period.Month{}, apperror.NewInvalidMonth(text, err)
	}
	return m, nil
}

// Navigate returns the neighbours of month. Next never passes the current month.
func (s *Service) Navigate(month period.Month) (Navigation, error) {
	current := s.CurrentMonth()
	if month.After(current) {
		return Navigation{}, apperror.NewFuturePeriod(month.String(), current.String())
	}
	return Navigation{
		Month:   month.String(),
		Prev:    month.Prev().String(),
		Next:    month.NextCapped(current).String(),
		Current: current.String(),
		HasNext: month.Before(current),
	}, nil
}

// View returns the latest merged view, or FEED_UNAVAILABLE while sources are loading.
func (s *Service) View(ctx context.Context) (*feed.View, error) {
	if s.views == nil {
		return nil, apperror.NewFeedUnavailable(nil)
	}
	v := s.views.Current()
	if v == nil {
		return nil, apperror.NewFeedUnavailable(nil)
	}
	if !v.Ready() {
		return nil, apperror.NewFeedUnavailable(v.PendingNames())
	}
	return v, nil
}

// LocationTurnover reconstructs the cross-product turnover of location.
func (s *Service) LocationTurnover(ctx context.Context, view *feed.View, location string, month period.Month) (Turnover, error) {
	if strings.TrimSpace(location) == "" {
		return Turnover{}, apperror.NewMissingParam("location")
	}
	return s.turnover(ctx, view, ledger.LocationScope(location), month, s.CurrentMonth())
}

// ProductTurnover reconstructs the turnover of one product at location.
func (s *Service) ProductTurnover(ctx context.Context, view *feed.View, productID, location string, month period.Month) (Turnover, error) {
	if strings.TrimSpace(location) == "" {
		return Turnover{}, apperror.NewMissingParam("location")
	}
	if strings.TrimSpace(productID) == "" {
		return Turnover{}, apperror.NewMissingParam("productId")
	}
	return s.turnover(ctx, view, ledger.ProductScope(productID, location), month, s.CurrentMonth())
}

// LocationBreakdown returns a row per product seen at location, in the
// snapshot or in any ledger, plus the location total.
func (s *Service) LocationBreakdown(ctx context.Context, view *feed.View, location string, month period.Month) (Breakdown, error) {
	now := s.CurrentMonth()
	if strings.TrimSpace(location) == "" {
		return Breakdown{}, apperror.NewMissingParam("location")
	}
	total, err := s.turnover(ctx, view, ledger.LocationScope(location), month, now)
	if err != nil {
		return Breakdown{}, err
	}

	products := unique(append(view.Snapshot.Products(location), ledger.ProductsAt(view.AllEvents, location)...))

	rows := make([]Turnover, 0, len(products))
	for _, p := range products {
		row, err := s.turnover(ctx, view, ledger.ProductScope(p, location), month, now)
		if err != nil {
			return Breakdown{}, err
		}
		rows = append(rows, row)
	}

	return Breakdown{
		Location: total.Location,
		Month:    total.Month,
		Rows:     rows,
		Total:    total,
	}, nil
}

// LocationCards returns a summary card per location. Nil locations use the
// configured ones.
func (s *Service) LocationCards(ctx context.Context, view *feed.View, locations []string, month period.Month) (Cards, error) {
	if len(locations) == 0 {
		locations = s.locations
	}
	if month.IsZero() {
		month = s.CurrentMonth()
	}

	out := Cards{Month: month.String(), Cards: make([]Card, 0, len(locations))}
	if view != nil {
		out.Degraded = view.Degraded
		out.Version = view.Version
	}

	for _, loc := range locations {
		t, err := s.LocationTurnover(ctx, view, loc, month)
		if err != nil {
			return Cards{}, err
		}
		out.Cards = append(out.Cards, Card{
			Location: t.Location,
			Month:    t.Month,
			Opening:  t.Opening,
			Inflow:   t.Inflow,
			Outflow:  t.Outflow,
			Closing:  t.Closing,
		})
	}
	return out, nil
}

// ProductStat returns the per-product stat block.
func (s *Service) ProductStat(ctx context.Context, view *feed.View, productID, location string, month period.Month) (ProductStat, error) {
	t, err := s.ProductTurnover(ctx, view, productID, location, month)
	if err != nil {
		return ProductStat{}, err
	}
	return StatOf(t), nil
}

// StatOf derives the stat block from a product turnover.
func StatOf(t Turnover) ProductStat {
	return ProductStat{
		ProductID: t.ProductID,
		Location:  t.Location,
		Month:     t.Month,
		Current:   t.Current,
		Opening:   t.Opening,
		Dispatch:  t.Outflow,
		Total:     types.Round(t.Exact.Opening.Add(t.Exact.Inflow)),
	}
}

// Events lists merged events newest first, each with its direction under the
// service classifier.
func (s *Service) Events(view *feed.View, f EventFilter) ([]EventRow, error) {
	if view == nil {
		return nil, apperror.NewFeedUnavailable(nil)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	product := ledger.NormalizeProduct(f.ProductID)

	rows := make([]EventRow, 0, min(limit, len(view.AllEvents)))
	for _, e := range view.AllEvents {
		if f.Location != "" && !ledger.SameLocation(e.Location, f.Location) {
			continue
		}
		if product != "" && ledger.NormalizeProduct(e.ProductID) != product {
			continue
		}
		q, ok := e.Quantity.Decimal()
		rows = append(rows, EventRow{
			MovementEvent: e,
			Quantity:      q,
			ValidQuantity: ok,
			Direction:     s.classifier.Classify(e),
			Ambiguous:     ledger.IsAmbiguous(e),
		})
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (s *Service) turnover(ctx context.Context, view *feed.View, scope ledger.Scope, month, now period.Month) (Turnover, error) {
	if view == nil {
		return Turnover{}, apperror.NewFeedUnavailable(nil)
	}
	if month.IsZero() {
		month = now
	}

	current, invalid := view.Snapshot.Total(scope)

	res, err := reconstruct.Reconstruct(reconstruct.Input{
		CurrentBalance: current,
		Events:         ledger.FilterEvents(view.AllEvents, scope),
		Target:         month,
		Now:            now,
		Classifier:     s.classifier,
	})
	if err != nil {
		return Turnover{}, err
	}

	if s.observer != nil {
		s.observer.Reconstructed(ctx, scope.String(), month, res.Quality)
	}

	r := res.Rounded()
	t := Turnover{
		Location:        ledger.NormalizeLocation(scope.Location),
		Month:           month.String(),
		Opening:         r.Opening,
		Inflow:          r.Inflow,
		Outflow:         r.Outflow,
		Closing:         r.Closing,
		Current:         types.Round(current),
		Quality:         res.Quality,
		InvalidBalances: invalid,
		Exact:           res,
	}
	if !scope.AllProducts() {
		t.ProductID = ledger.NormalizeProduct(scope.ProductID)
	}
	return t, nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
