// Package history tracks which unordered pairs a rater has already
// been shown, so the selector never repeats one.
package history

// Option applies a configuration option to the in-memory history.
type Option func(*inMemoryHistory)

// WithMaxRaters bounds how many raters keep a cached index at once.
// If maxRaters > 0: bounded mode, an arbitrary rater is evicted when full.
// If maxRaters <= 0: unbounded mode (no eviction).
func WithMaxRaters(maxRaters int) Option {
	return func(h *inMemoryHistory) {
		h.maxRaters = maxRaters
	}
}
