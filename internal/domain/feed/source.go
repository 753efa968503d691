// Package feed merges the balance snapshot and the three movement ledgers
// into one immutable View that consumers read without locks.
package feed

import (
	"context"
	"sync"
	"time"

	"chemdash/internal/domain/ledger"
)

// Name identifies one of the four sources.
type Name string

const (
	NameSnapshot       Name = "snapshot"
	NameImports        Name = "imports"
	NameLocalPurchases Name = "localPurchases"
	NameDispatches     Name = "dispatches"
)

// Names lists all sources in merge order.
var Names = []Name{NameSnapshot, NameImports, NameLocalPurchases, NameDispatches}

// NameOf returns the event source name for origin.
func NameOf(origin ledger.Origin) Name {
	switch origin {
	case ledger.OriginImport:
		return NameImports
	case ledger.OriginLocalPurchase:
		return NameLocalPurchases
	case ledger.OriginDispatch:
		return NameDispatches
	}
	return Name(origin)
}

// Update is one full replacement of a source's items, or an error.
// An update with Err set carries no items.
type Update[T any] struct {
	Items T
	Err   error
	At    time.Time
}

// Source streams full replacements. Watch returns a channel that is closed
// when ctx is done or the source gives up.
type Source[T any] interface {
	Watch(ctx context.Context) <-chan Update[T]
}

type (
	SnapshotSource = Source[ledger.Snapshot]
	EventSource    = Source[[]ledger.MovementEvent]
)

// Sources groups the four inputs of a Merger.
type Sources struct {
	Snapshot       SnapshotSource
	Imports        EventSource
	LocalPurchases EventSource
	Dispatches     EventSource
}

// Pipe is an in-process Source. Values sent before Watch are buffered;
// only the latest value is kept.
type Pipe[T any] struct {
	mu      sync.Mutex
	ch      chan Update[T]
	pending *Update[T]
	closed  bool
}

// NewPipe creates an in-process source.
func NewPipe[T any]() *Pipe[T] {
	return &Pipe[T]{}
}

// Watch implements Source. A Pipe supports a single watcher.
func (p *Pipe[T]) Watch(ctx context.Context) <-chan Update[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Update[T], 1)
	if p.pending != nil {
		ch <- *p.pending
		p.pending = nil
	}
	if p.closed {
		close(ch)
		return ch
	}
	p.ch = ch

	go func() {
		<-ctx.Done()
		p.Close()
	}()

	return ch
}

// Send replaces the source's items.
func (p *Pipe[T]) Send(items T) {
	p.push(Update[T]{Items: items, At: time.Now()})
}

// Fail reports a source error.
func (p *Pipe[T]) Fail(err error) {
	p.push(Update[T]{Err: err, At: time.Now()})
}

// Close ends the stream.
func (p *Pipe[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.ch != nil {
		close(p.ch)
		p.ch = nil
	}
}

// push keeps at most one undelivered update; a newer one replaces it.
func (p *Pipe[T]) push(u Update[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.ch == nil {
		p.pending = &u
		return
	}
	select {
	case p.ch <- u:
	default:
		select {
		case <-p.ch:
		default:
		}
		p.ch <- u
	}
}
