package selection_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/bodiman/elocheck/internal/domain/history"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/internal/domain/selection"
	. "github.com/smartystreets/goconvey/convey"
)

func newSelector(hist history.History) *selection.Selector {
	return selection.New(hist, selection.WithRand(rand.New(rand.NewSource(1)))) //nolint:gosec // deterministic tests
}

func photoRefs(ids ...string) []model.ItemRef {
	out := make([]model.ItemRef, len(ids))
	for i, id := range ids {
		out[i] = model.UserPhotoRef(id)
	}
	return out
}

func sampleRefs(ids ...string) []model.ItemRef {
	out := make([]model.ItemRef, len(ids))
	for i, id := range ids {
		out[i] = model.SampleImageRef(id)
	}
	return out
}

func TestSelector_NextPair(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pool with unseen user photos", t, func() {
		hist := history.NewInMemoryHistory()
		sel := newSelector(hist)
		pool := selection.Pool{
			UserItems:   photoRefs("p1", "p2"),
			SampleItems: sampleRefs("s1"),
		}

		Convey("When a pair is requested", func() {
			pair, err := sel.NextPair(ctx, "rater-1", pool)

			Convey("Then it comes from the user-only phase", func() {
				So(err, ShouldBeNil)
				So(pair.Phase, ShouldEqual, model.PhaseUserOnly)
				So(pair.Left.Kind, ShouldEqual, model.KindUserPhoto)
				So(pair.Right.Kind, ShouldEqual, model.KindUserPhoto)
				So(pair.Message, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a rater who has seen every user-photo pair", t, func() {
		hist := history.NewInMemoryHistory()
		sel := newSelector(hist)
		users := photoRefs("p1", "p2")
		samples := sampleRefs("s1")
		hist.Record(ctx, "rater-1", users[0], users[1])
		pool := selection.Pool{UserItems: users, SampleItems: samples}

		Convey("When the next pair is requested", func() {
			pair, err := sel.NextPair(ctx, "rater-1", pool)

			Convey("Then the selector enters the combined phase with a message", func() {
				So(err, ShouldBeNil)
				So(pair.Phase, ShouldEqual, model.PhaseCombined)
				So(pair.Message, ShouldNotBeEmpty)
			})

			Convey("And the message appears only on the first combined pair", func() {
				So(pair.Message, ShouldNotBeEmpty)
				hist.Record(ctx, "rater-1", pair.Left, pair.Right)

				next, err := sel.NextPair(ctx, "rater-1", pool)
				So(err, ShouldBeNil)
				So(next.Phase, ShouldEqual, model.PhaseCombined)
				So(next.Message, ShouldBeEmpty)
			})
		})

		Convey("When the transition flag is reset", func() {
			first, err := sel.NextPair(ctx, "rater-1", pool)
			So(err, ShouldBeNil)
			So(first.Message, ShouldNotBeEmpty)

			sel.ResetTransition("rater-1")
			again, err := sel.NextPair(ctx, "rater-1", pool)
			So(err, ShouldBeNil)
			So(again.Message, ShouldNotBeEmpty)
		})
	})

	Convey("Given a pool too small to form a pair", t, func() {
		sel := newSelector(history.NewInMemoryHistory())

		Convey("When both pools are empty", func() {
			_, err := sel.NextPair(ctx, "rater-1", selection.Pool{})

			Convey("Then exhaustion reports no content", func() {
				var ex *selection.ExhaustedError
				So(errors.As(err, &ex), ShouldBeTrue)
				So(ex.Reason, ShouldEqual, selection.ReasonNoContent)
			})
		})

		Convey("When only one item exists", func() {
			_, err := sel.NextPair(ctx, "rater-1", selection.Pool{UserItems: photoRefs("p1")})

			var ex *selection.ExhaustedError
			So(errors.As(err, &ex), ShouldBeTrue)
			So(ex.Reason, ShouldEqual, selection.ReasonNoContent)
		})
	})

	Convey("Given user pairs are spent and no samples exist", t, func() {
		hist := history.NewInMemoryHistory()
		sel := newSelector(hist)
		users := photoRefs("p1", "p2")
		hist.Record(ctx, "rater-1", users[0], users[1])

		Convey("When the next pair is requested", func() {
			_, err := sel.NextPair(ctx, "rater-1", selection.Pool{UserItems: users})

			Convey("Then exhaustion reports no content", func() {
				var ex *selection.ExhaustedError
				So(errors.As(err, &ex), ShouldBeTrue)
				So(ex.Reason, ShouldEqual, selection.ReasonNoContent)
			})
		})
	})

	Convey("Given a single unseen cross pair", t, func() {
		hist := history.NewInMemoryHistory()
		sel := newSelector(hist)
		pool := selection.Pool{
			UserItems:   photoRefs("p1"),
			SampleItems: sampleRefs("s1"),
		}

		Convey("When it is drawn repeatedly without being recorded", func() {
			leftKinds := make(map[model.Kind]bool)
			for i := 0; i < 50; i++ {
				pair, err := sel.NextPair(ctx, "rater-1", pool)
				So(err, ShouldBeNil)
				So(pair.Phase, ShouldEqual, model.PhaseCombined)
				leftKinds[pair.Left.Kind] = true
			}

			Convey("Then both orientations are served", func() {
				So(leftKinds[model.KindUserPhoto], ShouldBeTrue)
				So(leftKinds[model.KindSampleImage], ShouldBeTrue)
			})
		})
	})

	Convey("Given a rater who has exhausted every pair", t, func() {
		hist := history.NewInMemoryHistory()
		sel := newSelector(hist)
		users := photoRefs("p1", "p2")
		samples := sampleRefs("s1")
		hist.Record(ctx, "rater-1", users[0], users[1])
		hist.Record(ctx, "rater-1", users[0], samples[0])
		hist.Record(ctx, "rater-1", users[1], samples[0])

		Convey("When the next pair is requested", func() {
			_, err := sel.NextPair(ctx, "rater-1", selection.Pool{UserItems: users, SampleItems: samples})

			Convey("Then exhaustion reports fully compared", func() {
				var ex *selection.ExhaustedError
				So(errors.As(err, &ex), ShouldBeTrue)
				So(ex.Reason, ShouldEqual, selection.ReasonFullyCompared)
			})
		})
	})

	Convey("Given a full session over a small pool", t, func() {
		hist := history.NewInMemoryHistory()
		sel := newSelector(hist)
		users := photoRefs("p1", "p2", "p3")
		samples := sampleRefs("s1", "s2")
		pool := selection.Pool{UserItems: users, SampleItems: samples}

		Convey("When pairs are drawn until exhaustion", func() {
			seen := make(map[model.PairKey]struct{})
			userOnlyDone := false

			for {
				pair, err := sel.NextPair(ctx, "rater-1", pool)
				if err != nil {
					var ex *selection.ExhaustedError
					So(errors.As(err, &ex), ShouldBeTrue)
					So(ex.Reason, ShouldEqual, selection.ReasonFullyCompared)
					break
				}

				_, dup := seen[pair.Key()]
				So(dup, ShouldBeFalse)
				seen[pair.Key()] = struct{}{}

				if pair.Phase == model.PhaseCombined {
					userOnlyDone = true
				} else {
					So(userOnlyDone, ShouldBeFalse)
				}

				hist.Record(ctx, "rater-1", pair.Left, pair.Right)
			}

			// C(3,2) user pairs + C(2,2) sample pair + 3*2 cross pairs.
			So(len(seen), ShouldEqual, 3+1+6)
		})
	})
}
