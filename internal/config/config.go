// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
package config

import (
	"context"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ShardCount configures the number of shards in the rating store.
	ShardCount int `koanf:"shard_count"`

	// PoolSize caps how many candidates per variant feed pair selection.
	PoolSize int `koanf:"pool_size"`

	// LearningRate scales each rating update.
	LearningRate float64 `koanf:"learning_rate"`

	// MinScore and MaxScore bound ratings after every update.
	MinScore float64 `koanf:"min_score"`
	MaxScore float64 `koanf:"max_score"`

	// MinComparisons gates percentile eligibility.
	MinComparisons int `koanf:"min_comparisons"`

	// RecomputePolicy selects when percentiles refresh:
	// immediate, debounced, or scheduled.
	RecomputePolicy string `koanf:"recompute_policy"`

	// DebounceVotes triggers a refresh every N votes per cohort under
	// the debounced policy.
	DebounceVotes int `koanf:"debounce_votes"`

	// ScheduleIntervalSeconds is the refresh period under the
	// scheduled policy.
	ScheduleIntervalSeconds int `koanf:"schedule_interval_seconds"`

	// WorkerCount sets the number of percentile refresh workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory refresh queue.
	QueueSize int `koanf:"queue_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// LogPath points at the on-disk comparison log. Empty selects the
	// in-memory log.
	LogPath string `koanf:"log_path"`

	// MeanRescale enables drift correction during full rebuilds.
	MeanRescale bool `koanf:"mean_rescale"`
}

// New creates a Config using defaults. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use
// and is currently unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:                "info",
		Addr:                    ":9080",
		ShardCount:              8,
		PoolSize:                50,
		LearningRate:            0.1,
		MinScore:                0.01,
		MaxScore:                10.0,
		MinComparisons:          1,
		RecomputePolicy:         "immediate",
		DebounceVotes:           10,
		ScheduleIntervalSeconds: 30,
		WorkerCount:             2,
		QueueSize:               1024,
		MaxLeaderboardLimit:     100,
		LogPath:                 "",
		MeanRescale:             false,
	}
	return c
}
