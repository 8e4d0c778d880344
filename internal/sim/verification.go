package sim

import (
	"context"
	"fmt"

	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/pkg/logger"
)

// verifyResults checks the post-rebuild state:
//   - the diagnostic validator reports no findings,
//   - every percentile is within [0, 100],
//   - each leaderboard is ordered by descending rating.
func verifyResults(ctx context.Context, svc *service.Service, pop *population, cfg *Config, stats *Stats) error {
	findings, err := svc.Validate(ctx)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if len(findings) > 0 {
		for _, f := range findings {
			logger.Get().Error(ctx, "consistency finding",
				logger.String("namespace", f.Namespace),
				logger.String("ref", f.Ref.String()),
				logger.String("issue", f.Issue),
			)
		}
		return fmt.Errorf("validator reported %d findings", len(findings))
	}

	for _, cohort := range model.Cohorts() {
		entries, err := svc.TopN(ctx, cohort, cfg.TopN)
		if err != nil {
			return fmt.Errorf("leaderboard %s: %w", cohort, err)
		}
		for i, e := range entries {
			if e.Percentile < 0 || e.Percentile > 100 {
				return fmt.Errorf("cohort %s: %s:%s percentile %.1f out of range", cohort, e.Kind, e.ID, e.Percentile)
			}
			if i > 0 && entries[i-1].Rating < e.Rating {
				return fmt.Errorf("cohort %s: leaderboard out of order at rank %d", cohort, e.Rank)
			}
		}
		if cfg.Verbose && len(entries) > 0 {
			logger.Get().Info(ctx, "leaderboard head",
				logger.String("cohort", string(cohort)),
				logger.String("top", entries[0].Kind+":"+entries[0].ID),
				logger.Float64("rating", entries[0].Rating),
			)
		}
	}

	// Spot-check that percentile lookups agree with seeded items.
	for _, it := range pop.items {
		if it.ref.Kind != model.KindUserPhoto {
			continue
		}
		pct, err := svc.GetPercentile(ctx, it.ref)
		if err != nil {
			return fmt.Errorf("percentile %s: %w", it.ref, err)
		}
		if pct < 0 || pct > 100 {
			return fmt.Errorf("percentile %s out of range: %.1f", it.ref, pct)
		}
	}

	logger.Get().Info(ctx, "verification passed",
		logger.Int("votes", stats.VotesSubmitted),
		logger.Int("replayed", stats.Replayed),
	)
	return nil
}
