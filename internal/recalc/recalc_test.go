package recalc_test

import (
	"context"
	"testing"
	"time"

	"github.com/bodiman/elocheck/internal/adapters/comparisonlog"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/internal/domain/rating"
	"github.com/bodiman/elocheck/internal/recalc"
	"github.com/bodiman/elocheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func items(refs ...model.ItemRef) []model.Item {
	out := make([]model.Item, len(refs))
	for i, ref := range refs {
		gender := model.GenderFemale
		out[i] = model.NewItem(ref, gender, "")
	}
	return out
}

func appendRecord(ctx context.Context, log comparisonlog.Log, winner, loser model.ItemRef) {
	rec := model.ComparisonRecord{
		Winner:    winner,
		Loser:     loser,
		Type:      model.TypeOf(winner, loser),
		RaterID:   "rater-1",
		Timestamp: time.Now().UTC(),
	}
	So(log.Append(ctx, rec), ShouldBeNil)
}

func TestRecalculator_RecomputeAll(t *testing.T) {
	ctx := context.Background()

	p1 := model.UserPhotoRef("p1")
	p2 := model.UserPhotoRef("p2")
	s1 := model.SampleImageRef("s1")
	s2 := model.SampleImageRef("s2")

	Convey("Given a log of same-variant and mixed comparisons", t, func() {
		log := comparisonlog.NewMemLog()
		known := items(p1, p2, s1, s2)

		appendRecord(ctx, log, p1, p2)
		appendRecord(ctx, log, s1, s2)
		appendRecord(ctx, log, p1, s2)

		Convey("When all namespaces are rebuilt", func() {
			result, err := recalc.New(log).RecomputeAll(ctx, known)
			So(err, ShouldBeNil)

			Convey("Then the photo stream only saw the photo record", func() {
				So(result.Report.Replayed[recalc.StreamUserPhotos], ShouldEqual, 1)
				So(result.PhotoRatings[p1].Rating, ShouldAlmostEqual, 1.05, 1e-9)
				So(result.PhotoRatings[p2].Rating, ShouldAlmostEqual, 0.95, 1e-9)
			})

			Convey("Then the sample stream only saw the sample record", func() {
				So(result.Report.Replayed[recalc.StreamSampleImages], ShouldEqual, 1)
				So(result.SampleRatings[s1].Rating, ShouldAlmostEqual, 1.05, 1e-9)
			})

			Convey("Then the combined stream replayed everything", func() {
				So(result.Report.Replayed[recalc.StreamCombined], ShouldEqual, 3)
				// p1 won twice in the combined stream.
				So(result.CombinedRatings[p1].Wins, ShouldEqual, 2)
				So(result.CombinedRatings[s2].Losses, ShouldEqual, 2)
			})

			Convey("Then counters match the replayed outcomes", func() {
				So(result.PhotoRatings[p1].Wins, ShouldEqual, 1)
				So(result.PhotoRatings[p1].TotalComparisons, ShouldEqual, 1)
				So(result.PhotoRatings[p2].Losses, ShouldEqual, 1)
			})

			Convey("Then percentiles and confidence are assigned", func() {
				So(result.PhotoRatings[p1].Percentile, ShouldEqual, 100.0)
				So(result.PhotoRatings[p2].Percentile, ShouldEqual, 50.0)
				So(result.PhotoRatings[p1].Confidence, ShouldBeGreaterThan, 0)
			})

			Convey("Then nothing was skipped", func() {
				So(result.Report.Skipped, ShouldBeEmpty)
				So(result.Report.Resumed, ShouldBeFalse)
			})

			Convey("And a second rebuild is deterministic", func() {
				again, err := recalc.New(log).RecomputeAll(ctx, known)
				So(err, ShouldBeNil)
				So(again.PhotoRatings, ShouldResemble, result.PhotoRatings)
				So(again.SampleRatings, ShouldResemble, result.SampleRatings)
				So(again.CombinedRatings, ShouldResemble, result.CombinedRatings)
			})
		})
	})

	Convey("Given a log referencing an unknown item", t, func() {
		log := comparisonlog.NewMemLog()
		known := items(p1, p2)

		appendRecord(ctx, log, p1, p2)
		appendRecord(ctx, log, p1, model.UserPhotoRef("deleted"))
		appendRecord(ctx, log, p2, p1)

		Convey("When the rebuild runs", func() {
			result, err := recalc.New(log).RecomputeAll(ctx, known)
			So(err, ShouldBeNil)

			Convey("Then the bad record is skipped and reported", func() {
				// Once in the photo stream, once in the combined stream.
				So(len(result.Report.Skipped), ShouldEqual, 2)
				So(result.Report.Skipped[0].Reason, ShouldNotBeEmpty)
			})

			Convey("Then the remaining records still replay", func() {
				So(result.Report.Replayed[recalc.StreamUserPhotos], ShouldEqual, 2)
				So(result.PhotoRatings[p1].TotalComparisons, ShouldEqual, 2)
			})
		})
	})

	Convey("Given items with no log records", t, func() {
		log := comparisonlog.NewMemLog()
		known := items(p1, p2)

		Convey("When the rebuild runs", func() {
			result, err := recalc.New(log).RecomputeAll(ctx, known)
			So(err, ShouldBeNil)

			Convey("Then every item keeps the initial state", func() {
				So(result.PhotoRatings[p1].Rating, ShouldEqual, model.InitialRating)
				So(result.PhotoRatings[p1].Percentile, ShouldEqual, model.InitialPercentile)
				So(result.PhotoRatings[p1].Confidence, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a custom updater", t, func() {
		log := comparisonlog.NewMemLog()
		known := items(p1, p2)
		appendRecord(ctx, log, p1, p2)

		Convey("When the rebuild uses it", func() {
			u := rating.New(rating.WithLearningRate(0.5))
			result, err := recalc.New(log, recalc.WithUpdater(u)).RecomputeAll(ctx, known)
			So(err, ShouldBeNil)

			Convey("Then ratings reflect the custom step", func() {
				So(result.PhotoRatings[p1].Rating, ShouldAlmostEqual, 1.25, 1e-9)
				So(result.PhotoRatings[p2].Rating, ShouldAlmostEqual, 0.75, 1e-9)
			})
		})
	})

	Convey("Given mean rescaling is enabled", t, func() {
		log := comparisonlog.NewMemLog()
		known := items(p1, p2)
		for i := 0; i < 20; i++ {
			appendRecord(ctx, log, p1, p2)
		}

		Convey("When the rebuild runs", func() {
			result, err := recalc.New(log, recalc.WithMeanRescale(true)).RecomputeAll(ctx, known)
			So(err, ShouldBeNil)

			Convey("Then the photo cohort mean returns to 1.0", func() {
				mean := (result.PhotoRatings[p1].Rating + result.PhotoRatings[p2].Rating) / 2
				So(mean, ShouldAlmostEqual, 1.0, 1e-6)
			})

			Convey("Then the ordering is preserved", func() {
				So(result.PhotoRatings[p1].Rating, ShouldBeGreaterThan, result.PhotoRatings[p2].Rating)
			})
		})
	})
}

// truncatedLog stops each scan after a fixed number of records,
// standing in for a replay interrupted mid-log.
type truncatedLog struct {
	comparisonlog.Log
	limit int
}

func (l *truncatedLog) ForEach(ctx context.Context, fromSeq uint64, fn func(uint64, model.ComparisonRecord) error) error {
	n := 0
	return l.Log.ForEach(ctx, fromSeq, func(seq uint64, rec model.ComparisonRecord) error {
		if n >= l.limit {
			return context.Canceled
		}
		n++
		return fn(seq, rec)
	})
}

func TestRecalculator_InterruptedResume(t *testing.T) {
	ctx := context.Background()

	p1 := model.UserPhotoRef("p1")
	p2 := model.UserPhotoRef("p2")

	Convey("Given a rebuild interrupted mid-log", t, func() {
		log := comparisonlog.NewMemLog()
		known := items(p1, p2)
		for i := 0; i < 10; i++ {
			appendRecord(ctx, log, p1, p2)
		}

		interrupted := recalc.New(&truncatedLog{Log: log, limit: 7},
			recalc.WithCheckpointer(log),
			recalc.WithCheckpointEvery(3),
		)
		partial, err := interrupted.RecomputeAll(ctx, known)
		So(err, ShouldNotBeNil)
		So(partial, ShouldNotBeNil)

		// Sibling streams may stop short of the truncation point when
		// the first failure cancels the group, so each stream is checked
		// against its own applied prefix.
		Convey("Then each stream checkpoint matches its applied prefix", func() {
			photoCp, err := log.Checkpoint(ctx, recalc.StreamUserPhotos)
			So(err, ShouldBeNil)
			So(photoCp, ShouldEqual, partial.PhotoRatings[p1].Wins)

			combinedCp, err := log.Checkpoint(ctx, recalc.StreamCombined)
			So(err, ShouldBeNil)
			So(combinedCp, ShouldEqual, partial.CombinedRatings[p1].Wins)
		})

		Convey("And resuming yields the same state as a clean rebuild", func() {
			photoCp, err := log.Checkpoint(ctx, recalc.StreamUserPhotos)
			So(err, ShouldBeNil)

			resumer := recalc.New(log,
				recalc.WithCheckpointer(log),
				recalc.WithCheckpointEvery(3),
			)
			resumed, err := resumer.Resume(ctx, known, partial)
			So(err, ShouldBeNil)
			So(resumed.Report.Replayed[recalc.StreamUserPhotos], ShouldEqual, 10-int(photoCp))

			clean, err := recalc.New(log).RecomputeAll(ctx, known)
			So(err, ShouldBeNil)
			So(resumed.PhotoRatings, ShouldResemble, clean.PhotoRatings)
			So(resumed.CombinedRatings, ShouldResemble, clean.CombinedRatings)
		})
	})
}

func TestRecalculator_Checkpoints(t *testing.T) {
	ctx := context.Background()

	p1 := model.UserPhotoRef("p1")
	p2 := model.UserPhotoRef("p2")

	Convey("Given a checkpointed log", t, func() {
		log := comparisonlog.NewMemLog()
		known := items(p1, p2)
		for i := 0; i < 5; i++ {
			appendRecord(ctx, log, p1, p2)
		}

		r := recalc.New(log,
			recalc.WithCheckpointer(log),
			recalc.WithCheckpointEvery(2),
		)

		Convey("When a full rebuild completes", func() {
			result, err := r.RecomputeAll(ctx, known)
			So(err, ShouldBeNil)

			Convey("Then every stream checkpoint sits at the log end", func() {
				for _, stream := range []string{recalc.StreamUserPhotos, recalc.StreamCombined} {
					seq, err := log.Checkpoint(ctx, stream)
					So(err, ShouldBeNil)
					So(seq, ShouldEqual, 5)
				}
			})

			Convey("And resuming replays nothing new", func() {
				resumed, err := r.Resume(ctx, known, result)
				So(err, ShouldBeNil)
				So(resumed.Report.Resumed, ShouldBeTrue)
				So(resumed.Report.Replayed[recalc.StreamUserPhotos], ShouldEqual, 0)
				So(resumed.PhotoRatings, ShouldResemble, result.PhotoRatings)
			})

			Convey("And new records replay incrementally on resume", func() {
				appendRecord(ctx, log, p2, p1)

				resumed, err := r.Resume(ctx, known, result)
				So(err, ShouldBeNil)
				So(resumed.Report.Replayed[recalc.StreamUserPhotos], ShouldEqual, 1)
				So(resumed.PhotoRatings[p2].Wins, ShouldEqual, 1)
				So(resumed.PhotoRatings[p1].TotalComparisons, ShouldEqual, 6)
			})
		})

		Convey("When RecomputeAll runs after stale checkpoints", func() {
			So(log.SaveCheckpoint(ctx, recalc.StreamUserPhotos, 4), ShouldBeNil)

			result, err := r.RecomputeAll(ctx, known)
			So(err, ShouldBeNil)

			Convey("Then checkpoints were reset and the full log replayed", func() {
				So(result.Report.Replayed[recalc.StreamUserPhotos], ShouldEqual, 5)
			})
		})
	})
}
