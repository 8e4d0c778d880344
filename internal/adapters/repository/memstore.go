package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/pkg/metrics"
)

// Sharded, in-memory Store implementation.
//
// Items are spread over shards by reference hash; each shard owns a
// mutex, so a read-modify-write of one item is atomic with respect to
// every other writer of that item. Cohort reads take shard snapshots
// and never block writers for long.

// defaultShardCount balances lock contention against iteration cost.
const defaultShardCount = 8

type shard struct {
	mu    sync.RWMutex
	items map[model.ItemRef]model.Item
}

// MemStore implements Store with sharded in-memory maps, one shard set
// per namespace.
type MemStore struct {
	shardCount int
	primary    []*shard
	combined   []*shard
}

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithShardCount sets the number of shards per namespace.
func WithShardCount(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{shardCount: defaultShardCount}
	for _, opt := range opts {
		opt(s)
	}
	s.primary = newShards(s.shardCount)
	s.combined = newShards(s.shardCount)
	metrics.UpdateRepositoryShardCount(s.shardCount)
	return s
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{items: make(map[model.ItemRef]model.Item)}
	}
	return shards
}

func (s *MemStore) shardIndex(ref model.ItemRef) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(ref.Kind)})
	_, _ = h.Write([]byte(ref.ID))
	return int(h.Sum32() % uint32(s.shardCount))
}

func (s *MemStore) shardFor(ns Namespace, ref model.ItemRef) *shard {
	return s.shardsOf(ns)[s.shardIndex(ref)]
}

func (s *MemStore) shardsOf(ns Namespace) []*shard {
	if ns == NamespaceCombined {
		return s.combined
	}
	return s.primary
}

// Create seeds a new item in the namespace.
func (s *MemStore) Create(_ context.Context, ns Namespace, item model.Item) error {
	sh := s.shardFor(ns, item.Ref)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.items[item.Ref]; exists {
		return ErrAlreadyExists
	}
	sh.items[item.Ref] = item
	return nil
}

// Get returns the current state of an item.
func (s *MemStore) Get(_ context.Context, ns Namespace, ref model.ItemRef) (model.Item, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	sh := s.shardFor(ns, ref)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	item, ok := sh.items[ref]
	if !ok {
		return model.Item{}, ErrNotFound
	}
	return item, nil
}

// Mutate applies fn under the shard lock and returns the new state.
func (s *MemStore) Mutate(_ context.Context, ns Namespace, ref model.ItemRef, fn func(*model.Item)) (model.Item, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	sh := s.shardFor(ns, ref)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	item, ok := sh.items[ref]
	if !ok {
		return model.Item{}, ErrNotFound
	}
	fn(&item)
	item.LastUpdated = time.Now()
	sh.items[ref] = item
	return item, nil
}

// MutatePair applies fn to both items under their shard locks. Shards
// lock in index order, so concurrent pairwise mutations cannot deadlock.
func (s *MemStore) MutatePair(_ context.Context, ns Namespace, refA, refB model.ItemRef, fn func(a, b *model.Item)) (model.Item, model.Item, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	shards := s.shardsOf(ns)
	ia, ib := s.shardIndex(refA), s.shardIndex(refB)
	lo, hi := ia, ib
	if lo > hi {
		lo, hi = hi, lo
	}
	shards[lo].mu.Lock()
	defer shards[lo].mu.Unlock()
	if hi != lo {
		shards[hi].mu.Lock()
		defer shards[hi].mu.Unlock()
	}

	a, okA := shards[ia].items[refA]
	b, okB := shards[ib].items[refB]
	if !okA || !okB {
		return model.Item{}, model.Item{}, ErrNotFound
	}
	fn(&a, &b)
	now := time.Now()
	a.LastUpdated = now
	b.LastUpdated = now
	shards[ia].items[refA] = a
	shards[ib].items[refB] = b
	return a, b, nil
}

// ListActivePool returns up to limit active opposite-pool candidates.
func (s *MemStore) ListActivePool(_ context.Context, kind model.Kind, gender model.Gender, excludeOwner string, limit int) ([]model.ItemRef, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	out := make([]model.ItemRef, 0, limit)
	for _, sh := range s.primary {
		sh.mu.RLock()
		for ref, item := range sh.items {
			if len(out) >= limit {
				sh.mu.RUnlock()
				return out, nil
			}
			if !item.Active || ref.Kind != kind || item.Gender != gender {
				continue
			}
			if excludeOwner != "" && item.OwnerID == excludeOwner {
				continue
			}
			out = append(out, ref)
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// ListCohort snapshots every item in the cohort.
func (s *MemStore) ListCohort(_ context.Context, cohort model.Cohort) ([]model.Item, error) {
	ns, match := cohortFilter(cohort)

	var out []model.Item
	for _, sh := range s.shardsOf(ns) {
		sh.mu.RLock()
		for _, item := range sh.items {
			if match(item) {
				out = append(out, item)
			}
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// SetPercentiles writes freshly computed percentiles for a cohort.
func (s *MemStore) SetPercentiles(_ context.Context, cohort model.Cohort, percentiles map[model.ItemRef]float64) error {
	ns, _ := cohortFilter(cohort)
	now := time.Now()
	for ref, pct := range percentiles {
		sh := s.shardFor(ns, ref)
		sh.mu.Lock()
		if item, ok := sh.items[ref]; ok {
			item.Percentile = pct
			item.LastUpdated = now
			sh.items[ref] = item
		}
		sh.mu.Unlock()
	}
	return nil
}

// SetActive flips the active flag in both namespaces.
func (s *MemStore) SetActive(_ context.Context, ref model.ItemRef, active bool) error {
	found := false
	for _, ns := range []Namespace{NamespacePrimary, NamespaceCombined} {
		sh := s.shardFor(ns, ref)
		sh.mu.Lock()
		if item, ok := sh.items[ref]; ok {
			item.Active = active
			sh.items[ref] = item
			found = true
		}
		sh.mu.Unlock()
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// TouchSamples bumps last-used on sample items, best-effort.
func (s *MemStore) TouchSamples(_ context.Context, refs []model.ItemRef) {
	now := time.Now()
	for _, ref := range refs {
		if ref.Kind != model.KindSampleImage {
			continue
		}
		sh := s.shardFor(NamespacePrimary, ref)
		sh.mu.Lock()
		if item, ok := sh.items[ref]; ok {
			item.LastUsed = now
			sh.items[ref] = item
		}
		sh.mu.Unlock()
	}
}

// Count returns the number of items tracked in the namespace.
func (s *MemStore) Count(_ context.Context, ns Namespace) int {
	total := 0
	for _, sh := range s.shardsOf(ns) {
		sh.mu.RLock()
		total += len(sh.items)
		sh.mu.RUnlock()
	}
	metrics.UpdateRepositoryRecordsTotal(total)
	return total
}

// cohortFilter maps a cohort to its namespace and membership predicate.
func cohortFilter(cohort model.Cohort) (Namespace, func(model.Item) bool) {
	switch cohort {
	case model.CohortUserPhotos:
		return NamespacePrimary, func(it model.Item) bool { return it.Ref.Kind == model.KindUserPhoto }
	case model.CohortSampleImages:
		return NamespacePrimary, func(it model.Item) bool { return it.Ref.Kind == model.KindSampleImage }
	case model.CohortCombinedMale:
		return NamespaceCombined, func(it model.Item) bool { return it.Gender == model.GenderMale }
	case model.CohortCombinedFemale:
		return NamespaceCombined, func(it model.Item) bool { return it.Gender == model.GenderFemale }
	default:
		return NamespacePrimary, func(model.Item) bool { return false }
	}
}
