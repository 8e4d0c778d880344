// Package percentile ranks a cohort of items by rating and assigns
// percentiles (100 = best, 0 = worst).
//
// Percentiles are only meaningful relative to one cohort: all user
// photos, all sample images, or one gender slice of the combined
// namespace. Callers must never mix cohorts in a single Compute call.
package percentile

import (
	"math"
	"sort"

	"github.com/bodiman/elocheck/internal/domain/model"
)

// DefaultMinComparisons is the evidence floor below which an item keeps
// its last known percentile instead of being ranked.
const DefaultMinComparisons = 1

// Ranked is the slice of item state the calculator needs.
type Ranked struct {
	Ref              model.ItemRef
	Rating           float64
	TotalComparisons int
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithMinComparisons sets the evidence floor for ranking eligibility.
func WithMinComparisons(n int) Option {
	return func(c *Calculator) {
		if n >= 0 {
			c.minComparisons = n
		}
	}
}

// Calculator computes percentiles for one cohort. Pure; safe for
// concurrent use.
type Calculator struct {
	minComparisons int
}

// New constructs a Calculator with default configuration.
func New(opts ...Option) *Calculator {
	c := &Calculator{minComparisons: DefaultMinComparisons}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MinComparisons reports the configured evidence floor.
func (c *Calculator) MinComparisons() int { return c.minComparisons }

// Compute returns a percentile per eligible item. Items below the
// minimum comparison count are absent from the result and keep whatever
// percentile they last had.
//
// Rank order is rating descending; ties break by higher comparison
// count, then by reference, so the result is deterministic. Rank is
// 1-based and percentile = round(((N - rank + 1) / N) * 100, 1).
func (c *Calculator) Compute(items []Ranked) map[model.ItemRef]float64 {
	eligible := make([]Ranked, 0, len(items))
	for _, it := range items {
		if it.TotalComparisons >= c.minComparisons {
			eligible = append(eligible, it)
		}
	}
	if len(eligible) == 0 {
		return map[model.ItemRef]float64{}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.TotalComparisons != b.TotalComparisons {
			return a.TotalComparisons > b.TotalComparisons
		}
		if a.Ref.Kind != b.Ref.Kind {
			return a.Ref.Kind < b.Ref.Kind
		}
		return a.Ref.ID < b.Ref.ID
	})

	n := float64(len(eligible))
	out := make(map[model.ItemRef]float64, len(eligible))
	for i, it := range eligible {
		rank := float64(i + 1)
		out[it.Ref] = round1(((n - rank + 1) / n) * 100)
	}
	return out
}

// round1 rounds to one decimal place.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
