package firestoreinfra

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chemdash/internal/domain/feed"
	"chemdash/internal/domain/ledger"
	"chemdash/pkg/logger"
)

// Collection names.
const (
	CollectionStock          = "stock"
	CollectionImports        = "imports"
	CollectionLocalPurchases = "localPurchases"
	CollectionDispatches     = "dispatches"
)

const restartAfterError = 5 * time.Second

// CollectionSource is a feed.Source backed by a snapshot listener on one
// collection. Every query snapshot is decoded in full and delivered as one
// replacement.
type CollectionSource[T any] struct {
	client     *firestore.Client
	collection string
	name       feed.Name
	decode     func(docs []docData) T
	restart    time.Duration
}

// NewCollectionSource creates a source over collection.
func NewCollectionSource[T any](client *firestore.Client, name feed.Name, collection string, decode func(docs []docData) T) *CollectionSource[T] {
	return &CollectionSource[T]{
		client:     client,
		collection: collection,
		name:       name,
		decode:     decode,
		restart:    restartAfterError,
	}
}

// Watch implements feed.Source. A broken listener is restarted after a pause;
// the error is delivered so the merged view turns degraded meanwhile.
func (s *CollectionSource[T]) Watch(ctx context.Context) <-chan feed.Update[T] {
	out := make(chan feed.Update[T], 1)

	go func() {
		defer close(out)
		log := logger.FromContext(ctx).WithComponent("feed_source").With("source", string(s.name), "collection", s.collection)

		for {
			err := s.listen(ctx, out)
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return
			}
			log.Warnw("snapshot listener failed", "error", err)
			offer(out, feed.Update[T]{Err: err, At: time.Now()})

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restart):
			}
		}
	}()
	return out
}

// listen runs one snapshot listener until it fails.
func (s *CollectionSource[T]) listen(ctx context.Context, out chan feed.Update[T]) error {
	it := s.client.Collection(s.collection).Snapshots(ctx)
	defer it.Stop()

	for {
		qs, err := it.Next()
		if err != nil {
			return err
		}
		snaps, err := qs.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("read %s snapshot: %w", s.collection, err)
		}

		docs := make([]docData, 0, len(snaps))
		for _, ds := range snaps {
			docs = append(docs, docData{ID: ds.Ref.ID, Data: ds.Data(), CreateTime: ds.CreateTime})
		}
		offer(out, feed.Update[T]{Items: s.decode(docs), At: qs.ReadTime})
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

// SourcesConfig configures decoding of ledger documents.
type SourcesConfig struct {
	// DateField is the free-text date field.
	DateField string
	// Location is the zone free-text dates are read in.
	Location *time.Location
}

// Sources builds the four feed sources over client.
func Sources(client *firestore.Client, cfg SourcesConfig) feed.Sources {
	if cfg.DateField == "" {
		cfg.DateField = "date"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	ledgerSource := func(origin ledger.Origin, collection string) feed.EventSource {
		return NewCollectionSource(client, feed.NameOf(origin), collection, func(docs []docData) []ledger.MovementEvent {
			return decodeEvents(docs, origin, cfg.DateField, cfg.Location)
		})
	}

	return feed.Sources{
		Snapshot:       NewCollectionSource(client, feed.NameSnapshot, CollectionStock, decodeSnapshot),
		Imports:        ledgerSource(ledger.OriginImport, CollectionImports),
		LocalPurchases: ledgerSource(ledger.OriginLocalPurchase, CollectionLocalPurchases),
		Dispatches:     ledgerSource(ledger.OriginDispatch, CollectionDispatches),
	}
}

func decodeSnapshot(docs []docData) ledger.Snapshot {
	out := make(ledger.Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeBalance(d))
	}
	return out
}

func decodeEvents(docs []docData, origin ledger.Origin, dateField string, loc *time.Location) []ledger.MovementEvent {
	out := make([]ledger.MovementEvent, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeEvent(d, origin, dateField, loc))
	}
	return out
}
