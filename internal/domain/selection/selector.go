// Package selection implements the pair-selection state machine.
//
// For a given rater the selector walks three phases: USER_ONLY pairs
// (both items are user photos) until none remain, then COMBINED pairs
// (user photos, sample images, and cross pairs), then exhaustion.
// User-only pairs go first because they carry information about real
// people; calibration items only enter once that signal is spent.
package selection

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bodiman/elocheck/internal/domain/history"
	"github.com/bodiman/elocheck/internal/domain/model"
)

// Default selector configuration constants.
const (
	defaultMaxPoolSize = 50
)

// ExhaustedReason explains why no pair could be produced.
type ExhaustedReason string

const (
	// ReasonNoContent means there is nothing left to pair: the
	// opposite-gender pool is empty, or the user pairs are spent and no
	// sample items exist to extend the session.
	ReasonNoContent ExhaustedReason = "no_content"
	// ReasonFullyCompared means sample items exist but every pair,
	// including sample and cross pairs, has already been shown to this
	// rater.
	ReasonFullyCompared ExhaustedReason = "fully_compared"
)

// ExhaustedError is returned when the state machine reaches EXHAUSTED.
type ExhaustedError struct {
	Reason  ExhaustedReason
	Message string
}

func (e *ExhaustedError) Error() string {
	return "pair selection exhausted: " + string(e.Reason)
}

// combinedTransitionMessage is surfaced once per rater on the first
// COMBINED pair.
const combinedTransitionMessage = "You have compared everyone available right now; new comparisons will include sample photos."

// Pool is the active candidate pool for one rater, already filtered to
// the opposite gender and excluding the rater's own items.
type Pool struct {
	UserItems   []model.ItemRef
	SampleItems []model.ItemRef
}

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithRand injects the random source so selection is reproducible in
// tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Selector) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithMaxPoolSize caps how many items of each variant are considered.
func WithMaxPoolSize(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.maxPoolSize = n
		}
	}
}

// Selector chooses the next pair for a rater without ever repeating a
// normalized pair.
type Selector struct {
	history     history.History
	rng         *rand.Rand
	maxPoolSize int

	mu           sync.Mutex // guards rng and transitioned
	transitioned map[string]struct{}
}

// New constructs a Selector backed by the given history index.
func New(hist history.History, opts ...Option) *Selector {
	s := &Selector{
		history:      hist,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // selection order is not security sensitive
		maxPoolSize:  defaultMaxPoolSize,
		transitioned: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextPair returns the next unseen pair for the rater, or an
// *ExhaustedError distinguishing an empty pool from a fully compared one.
func (s *Selector) NextPair(ctx context.Context, raterID string, pool Pool) (model.Pair, error) {
	userItems := capPool(pool.UserItems, s.maxPoolSize)
	sampleItems := capPool(pool.SampleItems, s.maxPoolSize)

	if len(userItems)+len(sampleItems) < 2 {
		return model.Pair{}, &ExhaustedError{
			Reason:  ReasonNoContent,
			Message: "no one to compare right now; check back later",
		}
	}

	// Phase 1: pairs within the user-photo pool.
	candidates := s.unseenWithin(ctx, raterID, userItems)
	if len(candidates) > 0 {
		pair := candidates[s.pick(len(candidates))]
		pair.Phase = model.PhaseUserOnly
		return pair, nil
	}

	// Phase 2: user pairs are spent; widen to samples and cross pairs.
	candidates = append(candidates, s.unseenWithin(ctx, raterID, sampleItems)...)
	candidates = append(candidates, s.unseenAcross(ctx, raterID, userItems, sampleItems)...)
	if len(candidates) > 0 {
		pair := candidates[s.pick(len(candidates))]
		pair.Phase = model.PhaseCombined
		if s.firstTransition(raterID) {
			pair.Message = combinedTransitionMessage
		}
		return pair, nil
	}

	// With no sample items the rater is waiting on new content, not on
	// having seen everything the combined phase could ever offer.
	if len(sampleItems) == 0 {
		return model.Pair{}, &ExhaustedError{
			Reason:  ReasonNoContent,
			Message: "no one to compare right now; check back later",
		}
	}
	return model.Pair{}, &ExhaustedError{
		Reason:  ReasonFullyCompared,
		Message: "you have seen every available pair; check back when new items arrive",
	}
}

// ResetTransition clears the one-time combined-transition flag, e.g.
// when the rater starts a new session.
func (s *Selector) ResetTransition(raterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transitioned, raterID)
}

// unseenWithin enumerates unordered pairs inside one variant pool and
// drops any the rater has seen.
func (s *Selector) unseenWithin(ctx context.Context, raterID string, items []model.ItemRef) []model.Pair {
	var out []model.Pair
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if s.history.Contains(ctx, raterID, items[i], items[j]) {
				continue
			}
			out = append(out, model.Pair{Left: items[i], Right: items[j]})
		}
	}
	return out
}

// unseenAcross enumerates cross pairs between the two variant pools in
// both orientations. A cross pair therefore carries twice the draw
// weight of a within-pool pair, and either variant can land on the
// left. The normalized key still collapses both orientations to one
// history entry.
func (s *Selector) unseenAcross(ctx context.Context, raterID string, users, samples []model.ItemRef) []model.Pair {
	var out []model.Pair
	for _, u := range users {
		for _, sm := range samples {
			if s.history.Contains(ctx, raterID, u, sm) {
				continue
			}
			out = append(out,
				model.Pair{Left: u, Right: sm},
				model.Pair{Left: sm, Right: u},
			)
		}
	}
	return out
}

// pick draws a uniform index under the selector lock.
func (s *Selector) pick(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// firstTransition records and reports the rater's first entry into the
// COMBINED phase.
func (s *Selector) firstTransition(raterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transitioned[raterID]; ok {
		return false
	}
	s.transitioned[raterID] = struct{}{}
	return true
}

func capPool(items []model.ItemRef, maxSize int) []model.ItemRef {
	if len(items) > maxSize {
		return items[:maxSize]
	}
	return items
}
