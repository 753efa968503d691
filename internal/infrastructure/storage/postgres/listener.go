package postgres

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chemdash/pkg/logger"
)

// NOTIFY channels raised by the feed table triggers.
const (
	ChannelBalances  = "stock_balances_changed"
	ChannelMovements = "stock_movements_changed"
)

// Notification is one NOTIFY event. Resync is set after every (re)connect,
// when notifications may have been missed and every subscriber must reload.
type Notification struct {
	Channel string
	Payload string
	Resync  bool
}

// InvalidationListener is called for every notification.
type InvalidationListener func(n Notification)

// Listener holds one dedicated connection in LISTEN mode and fans
// notifications out to registered listeners.
type Listener struct {
	pool     *Pool
	channels []string

	listeners   map[int]InvalidationListener
	nextID      int
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener for channels.
func NewListener(pool *Pool, channels ...string) *Listener {
	if len(channels) == 0 {
		channels = []string{ChannelBalances, ChannelMovements}
	}
	return &Listener{
		pool:      pool,
		channels:  channels,
		listeners: make(map[int]InvalidationListener),
	}
}

// AddListener registers fn and returns a function that removes it.
func (l *Listener) AddListener(fn InvalidationListener) func() {
	l.listenersMu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.listenersMu.Unlock()

	return func() {
		l.listenersMu.Lock()
		delete(l.listeners, id)
		l.listenersMu.Unlock()
	}
}

// Start begins listening for NOTIFY events.
func (l *Listener) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return nil
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(l.ctx, "feed listener started", "channels", strings.Join(l.channels, ","))
	return nil
}

// Stop gracefully stops the listener.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	logger.Info(context.Background(), "feed listener stopped")
}

// listenLoop keeps a LISTEN connection open, reconnecting after failures.
func (l *Listener) listenLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		// Acquire dedicated connection for LISTEN
		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			l.pause()
			continue
		}

		if _, err = conn.Exec(l.ctx, l.listenSQL()); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			l.pause()
			continue
		}

		logger.Info(l.ctx, "listening for feed notifications", "channels", strings.Join(l.channels, ","))
		l.dispatch(Notification{Resync: true})

		l.waitForNotifications(conn)
		conn.Release()
	}
}

func (l *Listener) listenSQL() string {
	var b strings.Builder
	for _, ch := range l.channels {
		b.WriteString("LISTEN ")
		b.WriteString(pgx.Identifier{ch}.Sanitize())
		b.WriteString("; ")
	}
	return b.String()
}

// pause waits a second before reconnecting, or until shutdown.
func (l *Listener) pause() {
	select {
	case <-l.ctx.Done():
	case <-time.After(time.Second):
	}
}

// waitForNotifications blocks waiting for NOTIFY events until the connection
// breaks or the listener stops.
func (l *Listener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		// Wait for notification with timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return // Shutting down
			}
			if ctx.Err() != nil {
				// Timeout is expected, continue listening
				continue
			}
			logger.Warn(l.ctx, "LISTEN connection lost", "error", err)
			return
		}

		logger.Debug(l.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)

		l.dispatch(Notification{
			Channel: notification.Channel,
			Payload: strings.TrimSpace(notification.Payload),
		})
	}
}

// dispatch notifies registered listeners with panic recovery. Listeners run
// inline and must not block.
func (l *Listener) dispatch(n Notification) {
	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()

	for _, listener := range l.listeners {
		func(fn InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(context.Background(), "listener panic recovered", "channel", n.Channel, "panic", r)
				}
			}()
			fn(n)
		}(listener)
	}
}
