// Package history tracks which unordered pairs a rater has already
// been shown, so the selector never repeats one.
package history

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bodiman/elocheck/internal/domain/model"
)

// History is the dedup index of previously shown pairs, keyed per rater
// by the normalized pair key.
type History interface {
	// Record marks the pair as shown to the rater.
	Record(ctx context.Context, raterID string, a, b model.ItemRef)

	// Contains reports whether the rater has already seen the pair,
	// in either order.
	Contains(ctx context.Context, raterID string, a, b model.ItemRef) bool

	// Warm replaces the rater's cached index with the given records,
	// typically that rater's slice of the comparison log. Implementations
	// call this once per session instead of rescanning the log on every
	// selection.
	Warm(ctx context.Context, raterID string, records []model.ComparisonRecord)

	// Forget drops the rater's cached index.
	Forget(ctx context.Context, raterID string)

	Size() int64
}

// inMemoryHistory implements History with a per-rater set of pair keys.
type inMemoryHistory struct {
	mu        sync.RWMutex
	seen      map[string]map[model.PairKey]struct{}
	size      atomic.Int64
	maxRaters int // 0 or negative = unbounded
}

// NewInMemoryHistory creates a new in-memory history with configuration
// options.
func NewInMemoryHistory(opts ...Option) History {
	h := &inMemoryHistory{
		seen: make(map[string]map[model.PairKey]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Record marks the pair as shown to the rater.
func (h *inMemoryHistory) Record(_ context.Context, raterID string, a, b model.ItemRef) {
	key := model.NewPairKey(a, b)

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.seen[raterID]
	if !ok {
		if h.maxRaters > 0 && len(h.seen) >= h.maxRaters {
			h.evictOne()
		}
		set = make(map[model.PairKey]struct{})
		h.seen[raterID] = set
	}
	if _, dup := set[key]; !dup {
		set[key] = struct{}{}
		h.size.Add(1)
	}
}

// Contains reports whether the rater has seen the pair in either order.
func (h *inMemoryHistory) Contains(_ context.Context, raterID string, a, b model.ItemRef) bool {
	key := model.NewPairKey(a, b)

	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.seen[raterID]
	if !ok {
		return false
	}
	_, seen := set[key]
	return seen
}

// Warm replaces the rater's cached index from log records.
func (h *inMemoryHistory) Warm(_ context.Context, raterID string, records []model.ComparisonRecord) {
	set := make(map[model.PairKey]struct{}, len(records))
	for _, rec := range records {
		set[model.NewPairKey(rec.Winner, rec.Loser)] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.seen[raterID]; ok {
		h.size.Add(-int64(len(old)))
	} else if h.maxRaters > 0 && len(h.seen) >= h.maxRaters {
		h.evictOne()
	}
	h.seen[raterID] = set
	h.size.Add(int64(len(set)))
}

// Forget drops the rater's cached index.
func (h *inMemoryHistory) Forget(_ context.Context, raterID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.seen[raterID]; ok {
		delete(h.seen, raterID)
		h.size.Add(-int64(len(set)))
	}
}

// Size returns the total number of cached pair keys across raters.
func (h *inMemoryHistory) Size() int64 {
	return h.size.Load()
}

// evictOne removes an arbitrary rater's cache. Must be called with
// h.mu held. Eviction only costs a re-Warm on that rater's next session.
func (h *inMemoryHistory) evictOne() {
	for raterID, set := range h.seen {
		delete(h.seen, raterID)
		h.size.Add(-int64(len(set)))
		return
	}
}
