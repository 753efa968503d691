package reconstruct

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"chemdash/internal/core/period"
	"chemdash/pkg/logger"
)

// Observer receives the quality counts of each reconstruction.
type Observer interface {
	Reconstructed(ctx context.Context, scope string, target period.Month, q Quality)
}

// Observers fans out to several observers.
type Observers []Observer

// Reconstructed implements Observer.
func (os Observers) Reconstructed(ctx context.Context, scope string, target period.Month, q Quality) {
	for _, o := range os {
		if o != nil {
			o.Reconstructed(ctx, scope, target, q)
		}
	}
}

// LogObserver warns about zero-coerced quantities. Each distinct set of
// coerced event ids is logged once; panels and cards reconstructing the same
// scope again stay quiet.
type LogObserver struct {
	log *logger.Logger

	mu   sync.Mutex
	seen map[uint64]struct{}
}

// maxSeen bounds the dedup set; it is cleared when full.
const maxSeen = 4096

// NewLogObserver creates an observer that logs to log.
func NewLogObserver(log *logger.Logger) *LogObserver {
	return &LogObserver{
		log:  log.WithComponent("reconstruct"),
		seen: make(map[uint64]struct{}),
	}
}

// Reconstructed implements Observer.
func (o *LogObserver) Reconstructed(ctx context.Context, scope string, target period.Month, q Quality) {
	if q.InvalidQuantity == 0 || !o.first(q.InvalidQuantityIDs) {
		return
	}
	o.log.WithContext(ctx).Warnw("quantities coerced to zero",
		"scope", scope,
		"month", target.String(),
		"count", q.InvalidQuantity,
		"event_ids", q.InvalidQuantityIDs,
	)
}

// first reports whether ids has not been logged before.
func (o *LogObserver) first(ids []string) bool {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	h := fnv.New64a()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	key := h.Sum64()

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.seen[key]; ok {
		return false
	}
	if len(o.seen) >= maxSeen {
		clear(o.seen)
	}
	o.seen[key] = struct{}{}
	return true
}
