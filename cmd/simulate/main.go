package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/bodiman/elocheck/internal/sim"
	"github.com/bodiman/elocheck/pkg/logger"
)

// Default run limits.
const (
	defaultRunTimeout = 5 * time.Minute
)

func main() {
	var (
		photos  = flag.Int("photos", sim.DefaultPhotosPerGender, "User photos to seed per gender")
		samples = flag.Int("samples", sim.DefaultSamplesPerGender, "Sample images to seed per gender")
		raters  = flag.Int("raters", sim.DefaultRaters, "Number of synthetic raters")
		votes   = flag.Int("votes", sim.DefaultVotesPerRater, "Maximum votes per rater")
		topN    = flag.Int("top", sim.DefaultTopN, "Leaderboard depth checked during verification")
		seed    = flag.Int64("seed", 0, "Random seed (0 = time-based)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	cfg := sim.NewConfig()
	cfg.PhotosPerGender = *photos
	cfg.SamplesPerGender = *samples
	cfg.Raters = *raters
	cfg.VotesPerRater = *votes
	cfg.TopN = *topN
	cfg.Verbose = *verbose
	if *seed != 0 {
		cfg.Seed = *seed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	if err := sim.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
