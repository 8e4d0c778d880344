// Package rating implements the Bradley-Terry additive rating update
// and the comparison-count confidence estimate.
//
// Scores stay strictly positive ([minScore, maxScore] with minScore > 0),
// which the Bradley-Terry win-probability ratio requires. The same
// updater is used by the live submission path and by batch
// recalculation, so the two can never drift apart.
package rating

import "math"

// Default rating parameters.
const (
	DefaultLearningRate = 0.1
	DefaultMinScore     = 0.01
	DefaultMaxScore     = 10.0

	// confidenceSaturation is the comparison count at which confidence
	// reaches ~1.0: ln(n+1)/ln(101) == 1 at n == 100.
	confidenceSaturation = 100
)

// Option applies a configuration option to the Updater.
type Option func(*Updater)

// WithLearningRate sets the additive step size.
func WithLearningRate(lr float64) Option {
	return func(u *Updater) {
		if lr > 0 {
			u.learningRate = lr
		}
	}
}

// WithScoreBounds sets the clamp range. The minimum must stay positive.
func WithScoreBounds(minScore, maxScore float64) Option {
	return func(u *Updater) {
		if minScore > 0 && maxScore > minScore {
			u.minScore = minScore
			u.maxScore = maxScore
		}
	}
}

// Updater computes new scores from a win/loss outcome. Pure and
// deterministic; safe for concurrent use.
type Updater struct {
	learningRate float64
	minScore     float64
	maxScore     float64
}

// New constructs an Updater with default parameters.
func New(opts ...Option) *Updater {
	u := &Updater{
		learningRate: DefaultLearningRate,
		minScore:     DefaultMinScore,
		maxScore:     DefaultMaxScore,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WinProbability is the Bradley-Terry model: P(a beats b) = a / (a + b).
func WinProbability(a, b float64) float64 {
	return a / (a + b)
}

// Update returns the post-comparison scores for the winner and loser.
// The update is additive: the winner gains lr*(1 - P(win)), the loser
// loses lr*P(win from the loser's side). Both results are clamped.
func (u *Updater) Update(winner, loser float64) (newWinner, newLoser float64) {
	newWinner = u.clamp(winner + u.learningRate*(1-WinProbability(winner, loser)))
	newLoser = u.clamp(loser + u.learningRate*(0-WinProbability(loser, winner)))
	return newWinner, newLoser
}

// Bounds reports the clamp range in effect.
func (u *Updater) Bounds() (minScore, maxScore float64) {
	return u.minScore, u.maxScore
}

// InBounds reports whether a score lies in the clamp range. Ratings
// produced by Update always do; this exists for diagnostic validation.
func (u *Updater) InBounds(score float64) bool {
	return score >= u.minScore && score <= u.maxScore
}

func (u *Updater) clamp(score float64) float64 {
	return math.Max(u.minScore, math.Min(u.maxScore, score))
}

// Confidence maps a comparison count to a [0,1] scalar reflecting how
// much evidence backs a rating: 0 at zero comparisons, ~1.0 at 100,
// monotonically non-decreasing in between.
func Confidence(totalComparisons int) float64 {
	if totalComparisons <= 0 {
		return 0
	}
	c := math.Log(float64(totalComparisons)+1) / math.Log(confidenceSaturation+1)
	return math.Min(c, 1.0)
}
