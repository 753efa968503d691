package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chemdash/internal/domain/ledger"
	"chemdash/pkg/logger"
)

// Merger fans in the four sources. A single goroutine owns the merge state;
// every received update rebuilds the View from scratch and publishes it.
type Merger struct {
	sources Sources
	log     *logger.Logger
	now     func() time.Time

	current atomic.Pointer[View]

	subsMu sync.Mutex
	subs   map[int]chan *View
	nextID int
	closed bool

	// Lifecycle
	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewMerger creates a merger. Current returns an empty, not ready view until
// the first update arrives.
func NewMerger(sources Sources, log *logger.Logger) *Merger {
	m := &Merger{
		sources: sources,
		log:     log.WithComponent("feed_merger"),
		now:     time.Now,
		subs:    make(map[int]chan *View),
	}
	m.current.Store(newState().build(time.Time{}))
	return m
}

// Start begins watching all sources.
func (m *Merger) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.sources.Snapshot == nil || m.sources.Imports == nil ||
		m.sources.LocalPurchases == nil || m.sources.Dispatches == nil {
		return fmt.Errorf("feed merger: all four sources are required")
	}

	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.started {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true

	m.subsMu.Lock()
	m.closed = false
	m.subsMu.Unlock()

	snap := m.sources.Snapshot.Watch(loopCtx)
	imports := m.sources.Imports.Watch(loopCtx)
	local := m.sources.LocalPurchases.Watch(loopCtx)
	dispatches := m.sources.Dispatches.Watch(loopCtx)

	m.wg.Add(1)
	go m.loop(loopCtx, snap, imports, local, dispatches)

	m.log.Infow("feed merger started")
	return nil
}

// Stop cancels the sources and waits for the merge loop to exit.
func (m *Merger) Stop() {
	m.lifecycleMu.Lock()
	if !m.started {
		m.lifecycleMu.Unlock()
		return
	}
	cancel := m.cancel
	m.started = false
	m.cancel = nil
	m.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.subsMu.Lock()
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.subsMu.Unlock()

	m.log.Infow("feed merger stopped")
}

// Current returns the latest published view. It never returns nil.
func (m *Merger) Current() *View {
	return m.current.Load()
}

// Subscribe returns a channel that receives every published view, latest-wins:
// a slow reader skips intermediate views and only sees the newest one.
// The current view is delivered immediately. The returned function unsubscribes.
// After Stop the channel holds the last view and is already closed.
func (m *Merger) Subscribe() (<-chan *View, func()) {
	ch := make(chan *View, 1)

	m.subsMu.Lock()
	if m.closed {
		ch <- m.current.Load()
		close(ch)
		m.subsMu.Unlock()
		return ch, func() {}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.current.Load()
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

func (m *Merger) loop(ctx context.Context,
	snap <-chan Update[ledger.Snapshot],
	imports, local, dispatches <-chan Update[[]ledger.MovementEvent],
) {
	defer m.wg.Done()

	// Versions continue from whatever was published before, including the
	// placeholder and any earlier run.
	st := newState()
	st.version = m.current.Load().Version

	for snap != nil || imports != nil || local != nil || dispatches != nil {
		select {
		case <-ctx.Done():
			return

		case u, open := <-snap:
			if !open {
				snap = nil
				continue
			}
			m.logUpdate(ctx, NameSnapshot, len(u.Items), u.Err)
			if st.record(NameSnapshot, u.At, u.Err) {
				st.snapshot = append(ledger.Snapshot(nil), u.Items...)
			}

		case u, open := <-imports:
			if !open {
				imports = nil
				continue
			}
			m.recordEvents(ctx, st, NameImports, u)

		case u, open := <-local:
			if !open {
				local = nil
				continue
			}
			m.recordEvents(ctx, st, NameLocalPurchases, u)

		case u, open := <-dispatches:
			if !open {
				dispatches = nil
				continue
			}
			m.recordEvents(ctx, st, NameDispatches, u)
		}

		m.publish(st.build(m.now()))
	}

	m.log.Warnw("all feed sources closed")
}

func (m *Merger) recordEvents(ctx context.Context, st *state, name Name, u Update[[]ledger.MovementEvent]) {
	m.logUpdate(ctx, name, len(u.Items), u.Err)
	if st.record(name, u.At, u.Err) {
		st.events[name] = append([]ledger.MovementEvent(nil), u.Items...)
	}
}

func (m *Merger) logUpdate(ctx context.Context, name Name, n int, err error) {
	if err != nil {
		m.log.WithContext(ctx).Warnw("feed source failed, keeping last good value",
			"source", name, "error", err)
		return
	}
	m.log.WithContext(ctx).Debugw("feed source updated", "source", name, "items", n)
}

// publish stores v and offers it to every subscriber without blocking.
func (m *Merger) publish(v *View) {
	m.current.Store(v)

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}
