// Package dashboard keeps the month and product selection of a dashboard
// session and republishes its panels whenever the feeds or the selection change.
package dashboard

import (
	"context"
	"strings"
	"sync"

	"chemdash/internal/core/apperror"
	appctx "chemdash/internal/core/context"
	"chemdash/internal/core/period"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/reports"
	"chemdash/pkg/logger"
)

// Views is the part of feed.Merger a Board consumes.
type Views interface {
	Current() *feed.View
	Subscribe() (<-chan *feed.View, func())
}

// Panel is everything the dashboard renders for one selection.
type Panel struct {
	Generation uint64               `json:"generation"`
	Month      string               `json:"month"`
	Navigation reports.Navigation   `json:"navigation"`
	Cards      reports.Cards        `json:"cards"`
	Product    *reports.ProductStat `json:"product,omitempty"`
	Degraded   bool                 `json:"degraded"`
	Version    uint64               `json:"version"`
}

// Selection is the month and optional product drill-down of a session.
type Selection struct {
	Month     period.Month
	ProductID string
	Location  string
}

// Board is one dashboard session. Panels are computed synchronously; a result
// computed for a selection that has since changed is dropped, never published.
type Board struct {
	views   Views
	reports *reports.Service
	log     *logger.Logger

	mu         sync.Mutex
	sel        Selection
	generation uint64
	panel      *Panel
	dropped    uint64

	subsMu sync.Mutex
	subs   map[int]chan Panel
	nextID int
	closed bool
}

// NewBoard creates a board showing the current month.
func NewBoard(views Views, svc *reports.Service, log *logger.Logger) *Board {
	return &Board{
		views:   views,
		reports: svc,
		log:     log.WithComponent("dashboard"),
		sel:     Selection{Month: svc.CurrentMonth()},
		subs:    make(map[int]chan Panel),
	}
}

// Run recomputes the panel on every view until ctx is done or the views
// stop. Board subscriptions are closed when Run returns.
func (b *Board) Run(ctx context.Context) {
	ch, unsubscribe := b.views.Subscribe()
	defer unsubscribe()
	defer b.closeSubs()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			b.refresh(ctx, v)
		}
	}
}

// Selection returns the current selection and its generation.
func (b *Board) Selection() (Selection, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sel, b.generation
}

// Panel returns the latest published panel, if any.
func (b *Board) Panel() (Panel, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.panel == nil {
		return Panel{}, false
	}
	return *b.panel, true
}

// Dropped returns how many stale results were discarded.
func (b *Board) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Prev selects the previous month.
func (b *Board) Prev(ctx context.Context) Selection {
	return b.change(ctx, func(s *Selection) { s.Month = s.Month.Prev() })
}

// Next selects the following month, never past the current one.
func (b *Board) Next(ctx context.Context) Selection {
	current := b.reports.CurrentMonth()
	return b.change(ctx, func(s *Selection) { s.Month = s.Month.NextCapped(current) })
}

// Select selects month. Months after the current one are rejected.
func (b *Board) Select(ctx context.Context, month period.Month) (Selection, error) {
	current := b.reports.CurrentMonth()
	if month.After(current) {
		return Selection{}, apperror.NewFuturePeriod(month.String(), current.String())
	}
	return b.change(ctx, func(s *Selection) { s.Month = month }), nil
}

// SelectProduct drills down to one product at location. An empty productID
// returns to the cross-product view.
func (b *Board) SelectProduct(ctx context.Context, productID, location string) Selection {
	productID = strings.TrimSpace(productID)
	return b.change(ctx, func(s *Selection) {
		if productID == "" {
			s.ProductID, s.Location = "", ""
			return
		}
		s.ProductID, s.Location = productID, location
	})
}

// Subscribe returns a latest-wins channel of published panels.
func (b *Board) Subscribe() (<-chan Panel, func()) {
	ch := make(chan Panel, 1)

	b.mu.Lock()
	b.subsMu.Lock()
	if b.panel != nil {
		offer(ch, *b.panel)
	}
	if b.closed {
		close(ch)
		b.subsMu.Unlock()
		b.mu.Unlock()
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subsMu.Unlock()
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subsMu.Lock()
			defer b.subsMu.Unlock()
			if c, ok := b.subs[id]; ok {
				close(c)
				delete(b.subs, id)
			}
		})
	}
}

func (b *Board) closeSubs() {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Board) change(ctx context.Context, apply func(*Selection)) Selection {
	b.mu.Lock()
	apply(&b.sel)
	b.generation++
	sel := b.sel
	b.mu.Unlock()

	b.refresh(ctx, b.views.Current())
	return sel
}

func (b *Board) refresh(ctx context.Context, v *feed.View) {
	if v == nil || !v.Ready() {
		return
	}
	ctx = appctx.WithFeed(ctx, v.Version, v.Degraded)
	sel, gen := b.Selection()

	p, err := b.compute(ctx, v, sel, gen)
	if err != nil {
		b.log.WithContext(ctx).Warnw("panel computation failed",
			"month", sel.Month.String(), "product", sel.ProductID, "error", err)
		return
	}
	b.publish(ctx, p)
}

func (b *Board) compute(ctx context.Context, v *feed.View, sel Selection, gen uint64) (Panel, error) {
	nav, err := b.reports.Navigate(sel.Month)
	if err != nil {
		return Panel{}, err
	}
	cards, err := b.reports.LocationCards(ctx, v, nil, sel.Month)
	if err != nil {
		return Panel{}, err
	}

	p := Panel{
		Generation: gen,
		Month:      sel.Month.String(),
		Navigation: nav,
		Cards:      cards,
		Degraded:   v.Degraded,
		Version:    v.Version,
	}

	if sel.ProductID != "" {
		stat, err := b.reports.ProductStat(ctx, v, sel.ProductID, sel.Location, sel.Month)
		if err != nil {
			return Panel{}, err
		}
		p.Product = &stat
	}
	return p, nil
}

// publish stores p unless the selection moved on or a newer view was
// already published for the same selection.
func (b *Board) publish(ctx context.Context, p Panel) bool {
	b.mu.Lock()
	if p.Generation != b.generation ||
		(b.panel != nil && b.panel.Generation == p.Generation && b.panel.Version > p.Version) {
		b.dropped++
		b.mu.Unlock()
		b.log.WithContext(ctx).Debugw("dropped stale panel",
			"generation", p.Generation, "version", p.Version)
		return false
	}
	b.panel = &p

	// Offered under mu so subscribers never see panels out of order.
	b.subsMu.Lock()
	for _, ch := range b.subs {
		offer(ch, p)
	}
	b.subsMu.Unlock()
	b.mu.Unlock()
	return true
}

func offer(ch chan Panel, p Panel) {
	select {
	case ch <- p:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}
