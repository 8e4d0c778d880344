// Package recalc rebuilds all rating state from the append-only
// comparison log.
//
// The rebuild is intentionally path-dependent: records are applied in
// chronological order with the same updater the live path uses, not
// solved in closed form, because ratings reflect the order comparisons
// occurred. Three streams replay independently (user photos, sample
// images, and a combined stream fed by every record), producing the
// three rating namespaces. The streams have no shared state, so they
// run concurrently; each stream is internally sequential.
package recalc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bodiman/elocheck/internal/adapters/comparisonlog"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/internal/domain/percentile"
	"github.com/bodiman/elocheck/internal/domain/rating"
	"github.com/bodiman/elocheck/pkg/logger"
	"github.com/bodiman/elocheck/pkg/metrics"
)

// defaultCheckpointEvery bounds how much replay work is lost on
// cancellation.
const defaultCheckpointEvery = 1000

// Option applies a configuration option to the Recalculator.
type Option func(*Recalculator)

// WithUpdater overrides the rating updater.
func WithUpdater(u *rating.Updater) Option {
	return func(r *Recalculator) {
		if u != nil {
			r.updater = u
		}
	}
}

// WithCalculator overrides the percentile calculator.
func WithCalculator(c *percentile.Calculator) Option {
	return func(r *Recalculator) {
		if c != nil {
			r.calc = c
		}
	}
}

// WithCheckpointer enables resumable per-stream progress tracking.
func WithCheckpointer(cp comparisonlog.Checkpointer) Option {
	return func(r *Recalculator) {
		r.checkpoints = cp
	}
}

// WithCheckpointEvery sets how many records replay between checkpoints.
func WithCheckpointEvery(n int) Option {
	return func(r *Recalculator) {
		if n > 0 {
			r.checkpointEvery = n
		}
	}
}

// WithMeanRescale toggles post-replay drift correction that rescales
// each cohort so its mean rating is 1.0.
func WithMeanRescale(enabled bool) Option {
	return func(r *Recalculator) {
		r.rescale = enabled
	}
}

// Recalculator replays the comparison log into fresh rating state.
type Recalculator struct {
	log             comparisonlog.Log
	checkpoints     comparisonlog.Checkpointer
	updater         *rating.Updater
	calc            *percentile.Calculator
	checkpointEvery int
	rescale         bool
	logger          logger.Logger
}

// New constructs a Recalculator over the given log.
func New(log comparisonlog.Log, opts ...Option) *Recalculator {
	r := &Recalculator{
		log:             log,
		updater:         rating.New(),
		calc:            percentile.New(),
		checkpointEvery: defaultCheckpointEvery,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.Get().Named("recalc")
	return r
}

// RecomputeAll rebuilds every namespace from the start of the log.
// items is the full primary-namespace listing; it defines which
// references are known (records naming anything else are skipped and
// reported) and supplies the gender used for combined cohort slices.
//
// The caller must guarantee exclusivity: no live submissions may write
// the same namespaces while a rebuild runs.
func (r *Recalculator) RecomputeAll(ctx context.Context, items []model.Item) (*Result, error) {
	if r.checkpoints != nil {
		if err := r.checkpoints.ResetCheckpoints(ctx); err != nil {
			return nil, fmt.Errorf("reset recalc checkpoints: %w", err)
		}
	}
	return r.run(ctx, items, nil)
}

// Resume continues a previously cancelled rebuild from its checkpoints,
// starting each stream from prev's partial state.
func (r *Recalculator) Resume(ctx context.Context, items []model.Item, prev *Result) (*Result, error) {
	if prev == nil {
		return r.RecomputeAll(ctx, items)
	}
	return r.run(ctx, items, prev)
}

func (r *Recalculator) run(ctx context.Context, items []model.Item, prev *Result) (*Result, error) {
	start := time.Now()

	genders := make(map[model.ItemRef]model.Gender, len(items))
	for _, it := range items {
		genders[it.Ref] = it.Gender
	}

	res := &Result{
		PhotoRatings:    initialState(items, model.KindUserPhoto),
		SampleRatings:   initialState(items, model.KindSampleImage),
		CombinedRatings: initialState(items, 0),
		Report: Report{
			Replayed: make(map[string]int, 3),
			Resumed:  prev != nil,
		},
	}
	if prev != nil {
		mergeState(res.PhotoRatings, prev.PhotoRatings)
		mergeState(res.SampleRatings, prev.SampleRatings)
		mergeState(res.CombinedRatings, prev.CombinedRatings)
	}

	streams := []struct {
		name  string
		state map[model.ItemRef]RatingState
		match func(model.ComparisonType) bool
	}{
		{StreamUserPhotos, res.PhotoRatings, func(t model.ComparisonType) bool { return t == model.ComparisonUserPhotos }},
		{StreamSampleImages, res.SampleRatings, func(t model.ComparisonType) bool { return t == model.ComparisonSampleImages }},
		{StreamCombined, res.CombinedRatings, func(model.ComparisonType) bool { return true }},
	}

	var mu sync.Mutex // guards the shared report
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range streams {
		st := st
		g.Go(func() error {
			replayed, skipped, err := r.replayStream(gctx, st.name, st.state, st.match)
			mu.Lock()
			res.Report.Replayed[st.name] = replayed
			res.Report.Skipped = append(res.Report.Skipped, skipped...)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("replay comparison log: %w", err)
	}

	if r.rescale {
		rescaleToUnitMean(res.PhotoRatings, r.updater)
		rescaleToUnitMean(res.SampleRatings, r.updater)
		rescaleToUnitMean(res.CombinedRatings, r.updater)
	}

	r.finalizeCohort(res.PhotoRatings, nil, "")
	r.finalizeCohort(res.SampleRatings, nil, "")
	r.finalizeCohort(res.CombinedRatings, genders, model.GenderFemale)
	r.finalizeCohort(res.CombinedRatings, genders, model.GenderMale)

	res.Report.Duration = time.Since(start)
	metrics.RecordRecalcDuration(float64(res.Report.Duration.Milliseconds()))
	metrics.UpdateRecalcLastUnix(time.Now().Unix())

	r.logger.Info(ctx, "recalculation complete",
		logger.Int("photos", res.Report.Replayed[StreamUserPhotos]),
		logger.Int("samples", res.Report.Replayed[StreamSampleImages]),
		logger.Int("combined", res.Report.Replayed[StreamCombined]),
		logger.Int("skipped", len(res.Report.Skipped)),
	)
	return res, nil
}

// replayStream applies matching records in log order, checkpointing
// every checkpointEvery records. Records naming unknown items are
// skipped with a warning; the replay continues.
func (r *Recalculator) replayStream(
	ctx context.Context,
	stream string,
	state map[model.ItemRef]RatingState,
	match func(model.ComparisonType) bool,
) (int, []SkippedRecord, error) {
	var fromSeq uint64
	if r.checkpoints != nil {
		cp, err := r.checkpoints.Checkpoint(ctx, stream)
		if err != nil {
			return 0, nil, err
		}
		fromSeq = cp + 1
	}

	replayed := 0
	sinceCheckpoint := 0
	var skipped []SkippedRecord
	var lastApplied uint64

	err := r.log.ForEach(ctx, fromSeq, func(seq uint64, rec model.ComparisonRecord) error {
		if match(rec.Type) {
			winner, okW := state[rec.Winner]
			loser, okL := state[rec.Loser]
			switch {
			case !okW || !okL:
				skipped = append(skipped, SkippedRecord{
					Seq:      seq,
					RecordID: rec.RecordID,
					Stream:   stream,
					Winner:   rec.Winner,
					Loser:    rec.Loser,
					Reason:   "item not initialized",
				})
				metrics.RecordRecalcRecordsSkipped(1)
				r.logger.Warn(ctx, "skipping record referencing unknown item",
					logger.String("stream", stream),
					logger.Uint64("seq", seq),
					logger.String("winner", rec.Winner.String()),
					logger.String("loser", rec.Loser.String()),
				)
			default:
				winner.Rating, loser.Rating = r.updater.Update(winner.Rating, loser.Rating)
				winner.Wins++
				winner.TotalComparisons++
				loser.Losses++
				loser.TotalComparisons++
				state[rec.Winner] = winner
				state[rec.Loser] = loser

				replayed++
				metrics.RecordRecalcRecordsReplayed(1)
			}
		}

		// The record is fully processed; the checkpoint may advance past
		// it. Saving before the cancellation check keeps the persisted
		// checkpoint behind or equal to the applied state, never ahead.
		lastApplied = seq
		sinceCheckpoint++
		if sinceCheckpoint >= r.checkpointEvery {
			sinceCheckpoint = 0
			if r.checkpoints != nil {
				if err := r.checkpoints.SaveCheckpoint(ctx, stream, seq); err != nil {
					return err
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})

	// Checkpoint equals the applied prefix at every exit, success or
	// cancellation. A resume must never replay a record this run applied.
	if r.checkpoints != nil && lastApplied > 0 {
		cpErr := r.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), stream, lastApplied)
		if cpErr != nil && err == nil {
			err = cpErr
		}
	}
	return replayed, skipped, err
}

// finalizeCohort assigns percentiles and confidence within one cohort.
// For the combined namespace the cohort is a single gender slice; for
// the variant namespaces genders is nil and the whole map is one cohort.
func (r *Recalculator) finalizeCohort(state map[model.ItemRef]RatingState, genders map[model.ItemRef]model.Gender, gender model.Gender) {
	ranked := make([]percentile.Ranked, 0, len(state))
	for ref, st := range state {
		if genders != nil && genders[ref] != gender {
			continue
		}
		ranked = append(ranked, percentile.Ranked{
			Ref:              ref,
			Rating:           st.Rating,
			TotalComparisons: st.TotalComparisons,
		})
	}

	percentiles := r.calc.Compute(ranked)
	for _, rk := range ranked {
		st := state[rk.Ref]
		if pct, ok := percentiles[rk.Ref]; ok {
			st.Percentile = pct
		} else {
			st.Percentile = model.InitialPercentile
		}
		st.Confidence = rating.Confidence(st.TotalComparisons)
		state[rk.Ref] = st
	}
}

// initialState seeds every known item of the given kind (0 = all kinds)
// at the initial rating with zeroed counters.
func initialState(items []model.Item, kind model.Kind) map[model.ItemRef]RatingState {
	out := make(map[model.ItemRef]RatingState)
	for _, it := range items {
		if kind != 0 && it.Ref.Kind != kind {
			continue
		}
		out[it.Ref] = RatingState{Rating: model.InitialRating, Percentile: model.InitialPercentile}
	}
	return out
}

// mergeState overlays prev partial progress onto the seeded state.
func mergeState(dst, prev map[model.ItemRef]RatingState) {
	for ref, st := range prev {
		if _, ok := dst[ref]; ok {
			dst[ref] = st
		}
	}
}

// rescaleToUnitMean multiplies every rating in the cohort so the mean
// becomes 1.0, clamped back into the updater's bounds. Corrects the
// slow drift additive updates accumulate.
func rescaleToUnitMean(state map[model.ItemRef]RatingState, u *rating.Updater) {
	if len(state) == 0 {
		return
	}
	var sum float64
	for _, st := range state {
		sum += st.Rating
	}
	mean := sum / float64(len(state))
	if mean == 0 {
		return
	}
	minScore, maxScore := u.Bounds()
	for ref, st := range state {
		scaled := st.Rating / mean
		if scaled < minScore {
			scaled = minScore
		}
		if scaled > maxScore {
			scaled = maxScore
		}
		st.Rating = scaled
		state[ref] = st
	}
}
