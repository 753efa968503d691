package postgres

import (
	"context"
	"time"

	appctx "chemdash/internal/core/context"
	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/pkg/logger"
)

const retryAfterError = 5 * time.Second

// NotifySource is a feed.Source that reloads a table whenever its NOTIFY
// channel fires. Bursts of notifications within the debounce window
// coalesce into one reload. A failed load is retried until it succeeds or
// the next notification arrives.
type NotifySource[T any] struct {
	listener *Listener
	channel  string
	payload  string // empty matches every payload
	load     func(ctx context.Context) (T, error)
	debounce time.Duration
	retry    time.Duration
	name     feed.Name
}

// NewNotifySource creates a source reloading with load on channel/payload.
func NewNotifySource[T any](name feed.Name, listener *Listener, channel, payload string, debounce time.Duration, load func(ctx context.Context) (T, error)) *NotifySource[T] {
	return &NotifySource[T]{
		listener: listener,
		channel:  channel,
		payload:  payload,
		load:     load,
		debounce: debounce,
		retry:    retryAfterError,
		name:     name,
	}
}

// Watch implements feed.Source.
func (s *NotifySource[T]) Watch(ctx context.Context) <-chan feed.Update[T] {
	out := make(chan feed.Update[T], 1)
	trigger := make(chan struct{}, 1)

	remove := s.listener.AddListener(func(n Notification) {
		if !s.matches(n) {
			return
		}
		select {
		case trigger <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(out)
		defer remove()
		s.run(ctx, trigger, out)
	}()
	return out
}

func (s *NotifySource[T]) matches(n Notification) bool {
	if n.Resync {
		return true
	}
	if n.Channel != s.channel {
		return false
	}
	return s.payload == "" || n.Payload == "" || n.Payload == s.payload
}

func (s *NotifySource[T]) run(ctx context.Context, trigger <-chan struct{}, out chan feed.Update[T]) {
	var retry <-chan time.Time

	// every reload gets its own trace so its queries and log lines correlate
	reload := func() {
		rctx := appctx.Background(ctx)
		items, err := s.load(rctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.FromContext(rctx).WithComponent("feed_source").
				Warnw("feed reload failed", "source", string(s.name), "error", err)
			retry = time.After(s.retry)
			offer(out, feed.Update[T]{Err: err, At: time.Now()})
			return
		}
		retry = nil
		offer(out, feed.Update[T]{Items: items, At: time.Now()})
	}

	reload()
	for {
		select {
		case <-ctx.Done():
			return
		case <-retry:
			reload()
		case <-trigger:
			if s.debounce > 0 {
				timer := time.NewTimer(s.debounce)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				// notifications that arrived meanwhile are covered by this reload
				select {
				case <-trigger:
				default:
				}
			}
			reload()
		}
	}
}

// offer replaces an undelivered update with u.
func offer[T any](ch chan feed.Update[T], u feed.Update[T]) {
	select {
	case ch <- u:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

// Sources builds the four feed sources over repo. The snapshot reloads on
// stock_balances_changed; each ledger reloads on stock_movements_changed with
// its origin as payload.
func Sources(repo *FeedRepo, listener *Listener, debounce time.Duration) feed.Sources {
	movements := func(origin ledger.Origin) feed.EventSource {
		return NewNotifySource(feed.NameOf(origin), listener, ChannelMovements, string(origin), debounce,
			func(ctx context.Context) ([]ledger.MovementEvent, error) {
				return repo.LoadMovements(ctx, origin)
			})
	}
	return feed.Sources{
		Snapshot:       NewNotifySource(feed.NameSnapshot, listener, ChannelBalances, "", debounce, repo.LoadSnapshot),
		Imports:        movements(ledger.OriginImport),
		LocalPurchases: movements(ledger.OriginLocalPurchase),
		Dispatches:     movements(ledger.OriginDispatch),
	}
}
