package sim

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/pkg/logger"
)

// population is the seeded ground truth. Each item carries a latent
// quality score; raters prefer higher quality with some noise, so the
// final ratings should recover the quality ordering.
type population struct {
	items   []seededItem
	quality map[model.ItemRef]float64
	raters  []rater
}

type seededItem struct {
	ref    model.ItemRef
	gender model.Gender
	owner  string
}

type rater struct {
	id     string
	gender model.Gender
}

// seedPopulation creates photos, samples, and raters, and registers
// every item with the service. Each user photo is owned by one rater of
// the same gender so ownership exclusion is exercised.
func seedPopulation(ctx context.Context, svc *service.Service, cfg *Config, rng *rand.Rand, stats *Stats) (*population, error) {
	pop := &population{quality: make(map[model.ItemRef]float64)}

	for i := 0; i < cfg.Raters; i++ {
		gender := model.GenderFemale
		if i%2 == 1 {
			gender = model.GenderMale
		}
		pop.raters = append(pop.raters, rater{id: uuid.New().String(), gender: gender})
	}

	for _, gender := range []model.Gender{model.GenderFemale, model.GenderMale} {
		owners := ratersOf(pop.raters, gender)
		for i := 0; i < cfg.PhotosPerGender; i++ {
			owner := ""
			if len(owners) > 0 {
				owner = owners[i%len(owners)].id
			}
			pop.items = append(pop.items, seededItem{
				ref:    model.UserPhotoRef(uuid.New().String()),
				gender: gender,
				owner:  owner,
			})
		}
		for i := 0; i < cfg.SamplesPerGender; i++ {
			pop.items = append(pop.items, seededItem{
				ref:    model.SampleImageRef(uuid.New().String()),
				gender: gender,
			})
		}
	}

	for _, it := range pop.items {
		pop.quality[it.ref] = rng.Float64()
		if err := svc.AddItem(ctx, it.ref, it.gender, it.owner); err != nil {
			return nil, fmt.Errorf("seed item %s: %w", it.ref, err)
		}
	}

	stats.ItemsSeeded = len(pop.items)
	logger.Get().Info(ctx, "population seeded",
		logger.Int("items", len(pop.items)),
		logger.Int("raters", len(pop.raters)),
	)
	return pop, nil
}

func ratersOf(raters []rater, gender model.Gender) []rater {
	var out []rater
	for _, r := range raters {
		if r.gender == gender {
			out = append(out, r)
		}
	}
	return out
}

// judge picks the winner of a pair: the higher-quality item wins unless
// noise flips the outcome.
func (p *population) judge(pair model.Pair, rng *rand.Rand) (winner, loser model.ItemRef) {
	const noise = 0.15

	winner, loser = pair.Left, pair.Right
	if p.quality[loser] > p.quality[winner] {
		winner, loser = loser, winner
	}
	if rng.Float64() < noise {
		winner, loser = loser, winner
	}
	return winner, loser
}
