package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/domain/selection"
	"github.com/bodiman/elocheck/pkg/logger"
)

// Run executes a complete simulation: seed, vote, rebuild, verify.
func Run(ctx context.Context, cfg *Config) error {
	stats := &Stats{StartTime: time.Now()}
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducibility matters here, not entropy

	logger.Get().Info(ctx, "starting ranking simulation",
		logger.Int("photosPerGender", cfg.PhotosPerGender),
		logger.Int("samplesPerGender", cfg.SamplesPerGender),
		logger.Int("raters", cfg.Raters),
		logger.Int("votesPerRater", cfg.VotesPerRater),
		logger.Int64("seed", cfg.Seed),
	)

	svc := service.New(
		service.WithRand(rand.New(rand.NewSource(cfg.Seed + 1))), //nolint:gosec // reproducible selection
		service.WithRecomputePolicy(service.PolicyImmediate),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	pop, err := seedPopulation(ctx, svc, cfg, rng, stats)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	if err := runVotingRounds(ctx, svc, pop, cfg, rng, stats); err != nil {
		return fmt.Errorf("voting failed: %w", err)
	}

	report, err := svc.RecomputeAll(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	for _, n := range report.Replayed {
		stats.Replayed += n
	}
	stats.Skipped = len(report.Skipped)

	if err := verifyResults(ctx, svc, pop, cfg, stats); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	logger.Get().Info(ctx, "simulation completed",
		logger.Int("itemsSeeded", stats.ItemsSeeded),
		logger.Int("pairsServed", stats.PairsServed),
		logger.Int("votesSubmitted", stats.VotesSubmitted),
		logger.Int("exhausted", stats.Exhausted),
		logger.Int("replayed", stats.Replayed),
		logger.Int("skipped", stats.Skipped),
		logger.String("duration", stats.Duration.String()),
	)
	return nil
}

// runVotingRounds interleaves raters so pools evolve the way they do in
// production, where many sessions run at once.
func runVotingRounds(ctx context.Context, svc *service.Service, pop *population, cfg *Config, rng *rand.Rand, stats *Stats) error {
	sessions := make(map[string]string, len(pop.raters))
	for _, r := range pop.raters {
		sessions[r.id] = uuid.New().String()
	}
	done := make(map[string]bool, len(pop.raters))

	for round := 0; round < cfg.VotesPerRater; round++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("simulation cancelled: %w", err)
		}
		for _, r := range pop.raters {
			if done[r.id] {
				continue
			}

			pair, err := svc.NextPair(ctx, r.id, r.gender)
			if err != nil {
				var ex *selection.ExhaustedError
				if errors.As(err, &ex) {
					stats.Exhausted++
					done[r.id] = true
					continue
				}
				return fmt.Errorf("next pair for %s: %w", r.id, err)
			}
			stats.PairsServed++

			winner, loser := pop.judge(pair, rng)
			if _, err := svc.SubmitComparison(ctx, winner, loser, r.id, sessions[r.id]); err != nil {
				return fmt.Errorf("submit comparison for %s: %w", r.id, err)
			}
			stats.VotesSubmitted++

			if cfg.Verbose {
				logger.Get().Debug(ctx, "vote recorded",
					logger.String("rater", r.id),
					logger.String("phase", string(pair.Phase)),
					logger.String("winner", winner.String()),
					logger.String("loser", loser.String()),
				)
			}
		}
	}
	return nil
}
