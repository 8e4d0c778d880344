// Package sim seeds a synthetic population and drives raters through
// the full pair-selection and voting loop, then verifies the resulting
// rating state against a known ground truth.
package sim

import "time"

// Default simulation parameters.
const (
	DefaultPhotosPerGender  = 12
	DefaultSamplesPerGender = 6
	DefaultRaters           = 20
	DefaultVotesPerRater    = 40
	DefaultTopN             = 10
)

// Config controls a simulation run.
type Config struct {
	// PhotosPerGender is the number of user photos seeded per gender.
	PhotosPerGender int

	// SamplesPerGender is the number of calibration images per gender.
	SamplesPerGender int

	// Raters is the number of synthetic raters, split evenly by gender.
	Raters int

	// VotesPerRater caps how many comparisons each rater submits.
	VotesPerRater int

	// Seed makes the run reproducible.
	Seed int64

	// TopN is the leaderboard depth checked during verification.
	TopN int

	// Verbose enables per-vote logging.
	Verbose bool
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		PhotosPerGender:  DefaultPhotosPerGender,
		SamplesPerGender: DefaultSamplesPerGender,
		Raters:           DefaultRaters,
		VotesPerRater:    DefaultVotesPerRater,
		Seed:             time.Now().UnixNano(),
		TopN:             DefaultTopN,
	}
}

// Stats accumulates simulation counters.
type Stats struct {
	ItemsSeeded    int
	PairsServed    int
	VotesSubmitted int
	Exhausted      int
	Replayed       int
	Skipped        int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
