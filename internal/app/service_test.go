package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/bodiman/elocheck/internal/adapters/comparisonlog"
	"github.com/bodiman/elocheck/internal/adapters/repository"
	service "github.com/bodiman/elocheck/internal/app"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/internal/domain/rating"
	"github.com/bodiman/elocheck/internal/domain/selection"
	"github.com/bodiman/elocheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func startService(ctx context.Context, store repository.Store) *service.Service {
	svc := service.New(
		service.WithStore(store),
		service.WithRand(rand.New(rand.NewSource(7))), //nolint:gosec // deterministic tests
		service.WithRecomputePolicy(service.PolicyImmediate),
	)
	So(svc.Start(ctx), ShouldBeNil)
	return svc
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		store := repository.NewMemStore()
		svc := startService(ctx, store)
		defer svc.Stop()

		Convey("When an item is added", func() {
			ref := model.UserPhotoRef("p1")
			So(svc.AddItem(ctx, ref, model.GenderFemale, "alice"), ShouldBeNil)

			Convey("Then it exists in both namespaces at the initial rating", func() {
				for _, ns := range []repository.Namespace{repository.NamespacePrimary, repository.NamespaceCombined} {
					item, err := store.Get(ctx, ns, ref)
					So(err, ShouldBeNil)
					So(item.Rating, ShouldEqual, model.InitialRating)
					So(item.Percentile, ShouldEqual, model.InitialPercentile)
					So(item.Active, ShouldBeTrue)
				}
			})

			Convey("Then adding it again reports a conflict", func() {
				err := svc.AddItem(ctx, ref, model.GenderFemale, "alice")
				So(errors.Is(err, repository.ErrAlreadyExists), ShouldBeTrue)
			})
		})

		Convey("When the gender is invalid", func() {
			err := svc.AddItem(ctx, model.UserPhotoRef("p2"), model.Gender("unknown"), "bob")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When an item is deactivated", func() {
			ref := model.UserPhotoRef("p3")
			So(svc.AddItem(ctx, ref, model.GenderMale, "bob"), ShouldBeNil)
			So(svc.SetItemActive(ctx, ref, false), ShouldBeNil)

			item, err := store.Get(ctx, repository.NamespacePrimary, ref)
			So(err, ShouldBeNil)
			So(item.Active, ShouldBeFalse)
		})
	})
}

func TestService_NextPair(t *testing.T) {
	ctx := context.Background()

	Convey("Given male photos and a female rater", t, func() {
		store := repository.NewMemStore()
		svc := startService(ctx, store)
		defer svc.Stop()

		So(svc.AddItem(ctx, model.UserPhotoRef("m1"), model.GenderMale, "bob"), ShouldBeNil)
		So(svc.AddItem(ctx, model.UserPhotoRef("m2"), model.GenderMale, "dan"), ShouldBeNil)

		Convey("When the rater asks for a pair", func() {
			pair, err := svc.NextPair(ctx, "alice", model.GenderFemale)

			Convey("Then both items are male user photos in the user-only phase", func() {
				So(err, ShouldBeNil)
				So(pair.Phase, ShouldEqual, model.PhaseUserOnly)
				So(pair.Left.Kind, ShouldEqual, model.KindUserPhoto)
				So(pair.Right.Kind, ShouldEqual, model.KindUserPhoto)
			})
		})

		Convey("When the rater gender is missing", func() {
			_, err := svc.NextPair(ctx, "alice", model.Gender(""))
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When a male rater has no opposite-gender pool", func() {
			_, err := svc.NextPair(ctx, "eve", model.GenderMale)

			Convey("Then exhaustion reports no content", func() {
				var ex *selection.ExhaustedError
				So(errors.As(err, &ex), ShouldBeTrue)
				So(ex.Reason, ShouldEqual, selection.ReasonNoContent)
			})
		})

		Convey("When user pairs run out and samples exist", func() {
			So(svc.AddItem(ctx, model.SampleImageRef("sm1"), model.GenderMale, ""), ShouldBeNil)

			first, err := svc.NextPair(ctx, "alice", model.GenderFemale)
			So(err, ShouldBeNil)
			_, err = svc.SubmitComparison(ctx, first.Left, first.Right, "alice", "sess-1")
			So(err, ShouldBeNil)

			Convey("Then the next pair is combined with a one-time message", func() {
				pair, err := svc.NextPair(ctx, "alice", model.GenderFemale)
				So(err, ShouldBeNil)
				So(pair.Phase, ShouldEqual, model.PhaseCombined)
				So(pair.Message, ShouldNotBeEmpty)

				_, err = svc.SubmitComparison(ctx, pair.Left, pair.Right, "alice", "sess-1")
				So(err, ShouldBeNil)

				next, err := svc.NextPair(ctx, "alice", model.GenderFemale)
				So(err, ShouldBeNil)
				So(next.Phase, ShouldEqual, model.PhaseCombined)
				So(next.Message, ShouldBeEmpty)
			})
		})
	})
}

func TestService_SubmitComparison(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with seeded items", t, func() {
		store := repository.NewMemStore()
		svc := startService(ctx, store)
		defer svc.Stop()

		p1 := model.UserPhotoRef("p1")
		p2 := model.UserPhotoRef("p2")
		s1 := model.SampleImageRef("s1")
		So(svc.AddItem(ctx, p1, model.GenderMale, "bob"), ShouldBeNil)
		So(svc.AddItem(ctx, p2, model.GenderMale, "dan"), ShouldBeNil)
		So(svc.AddItem(ctx, s1, model.GenderMale, ""), ShouldBeNil)

		Convey("When a same-variant comparison is submitted", func() {
			result, err := svc.SubmitComparison(ctx, p1, p2, "alice", "sess-1")
			So(err, ShouldBeNil)

			Convey("Then the returned ratings match the update formula", func() {
				So(result.NewWinnerRating, ShouldAlmostEqual, 1.05, 1e-9)
				So(result.NewLoserRating, ShouldAlmostEqual, 0.95, 1e-9)
			})

			Convey("Then both namespaces are updated", func() {
				for _, ns := range []repository.Namespace{repository.NamespacePrimary, repository.NamespaceCombined} {
					winner, err := store.Get(ctx, ns, p1)
					So(err, ShouldBeNil)
					So(winner.Rating, ShouldAlmostEqual, 1.05, 1e-9)
					So(winner.Wins, ShouldEqual, 1)
					So(winner.TotalComparisons, ShouldEqual, 1)
					So(winner.Confidence, ShouldBeGreaterThan, 0)

					loser, err := store.Get(ctx, ns, p2)
					So(err, ShouldBeNil)
					So(loser.Losses, ShouldEqual, 1)
				}
			})

			Convey("Then percentiles refreshed immediately", func() {
				pct, err := svc.GetPercentile(ctx, p1)
				So(err, ShouldBeNil)
				So(pct, ShouldEqual, 100.0)

				pct, err = svc.GetPercentile(ctx, p2)
				So(err, ShouldBeNil)
				So(pct, ShouldEqual, 50.0)
			})

			Convey("Then the pair cannot be served again to that rater", func() {
				// Only p1-p2 exists in the user phase; alice has seen it.
				pair, err := svc.NextPair(ctx, "alice", model.GenderFemale)
				So(err, ShouldBeNil)
				So(pair.Phase, ShouldEqual, model.PhaseCombined)
			})
		})

		Convey("When a mixed comparison is submitted", func() {
			result, err := svc.SubmitComparison(ctx, p1, s1, "alice", "sess-1")
			So(err, ShouldBeNil)

			Convey("Then only the combined namespace moves", func() {
				So(result.NewWinnerRating, ShouldAlmostEqual, 1.05, 1e-9)

				primary, err := store.Get(ctx, repository.NamespacePrimary, p1)
				So(err, ShouldBeNil)
				So(primary.Rating, ShouldEqual, model.InitialRating)
				So(primary.TotalComparisons, ShouldEqual, 0)

				combined, err := store.Get(ctx, repository.NamespaceCombined, p1)
				So(err, ShouldBeNil)
				So(combined.Rating, ShouldAlmostEqual, 1.05, 1e-9)
			})
		})

		Convey("When the winner and loser are the same item", func() {
			_, err := svc.SubmitComparison(ctx, p1, p1, "alice", "sess-1")
			So(errors.Is(err, service.ErrSameItem), ShouldBeTrue)
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When the rater id is missing", func() {
			_, err := svc.SubmitComparison(ctx, p1, p2, "", "sess-1")
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When an item is unknown", func() {
			_, err := svc.SubmitComparison(ctx, p1, model.UserPhotoRef("ghost"), "alice", "sess-1")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

// flakyLog delegates to a real log but fails ByRater a set number of
// times.
type flakyLog struct {
	comparisonlog.Log
	mu       sync.Mutex
	failures int
}

func (l *flakyLog) setFailures(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
}

func (l *flakyLog) ByRater(ctx context.Context, raterID string) ([]model.ComparisonRecord, error) {
	l.mu.Lock()
	failing := l.failures > 0
	if failing {
		l.failures--
	}
	l.mu.Unlock()
	if failing {
		return nil, errors.New("log unavailable")
	}
	return l.Log.ByRater(ctx, raterID)
}

// rejectingLog delegates to a real log but refuses appends when armed.
type rejectingLog struct {
	comparisonlog.Log
	reject bool
}

func (l *rejectingLog) Append(ctx context.Context, rec model.ComparisonRecord) error {
	if l.reject {
		return errors.New("log full")
	}
	return l.Log.Append(ctx, rec)
}

func TestService_ConcurrentSubmissions(t *testing.T) {
	ctx := context.Background()

	Convey("Given two items under concurrent votes", t, func() {
		store := repository.NewMemStore()
		svc := startService(ctx, store)
		defer svc.Stop()

		p1 := model.UserPhotoRef("p1")
		p2 := model.UserPhotoRef("p2")
		So(svc.AddItem(ctx, p1, model.GenderMale, "bob"), ShouldBeNil)
		So(svc.AddItem(ctx, p2, model.GenderMale, "dan"), ShouldBeNil)

		const votes = 64

		Convey("When the same outcome is submitted from many goroutines", func() {
			var wg sync.WaitGroup
			errs := make(chan error, votes)
			wg.Add(votes)
			for i := 0; i < votes; i++ {
				go func(n int) {
					defer wg.Done()
					_, err := svc.SubmitComparison(ctx, p1, p2, fmt.Sprintf("rater-%d", n), "")
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err, ShouldBeNil)
			}

			Convey("Then the ratings equal the serialized application", func() {
				expectedW, expectedL := model.InitialRating, model.InitialRating
				u := rating.New()
				for i := 0; i < votes; i++ {
					expectedW, expectedL = u.Update(expectedW, expectedL)
				}

				winner, err := store.Get(ctx, repository.NamespacePrimary, p1)
				So(err, ShouldBeNil)
				So(winner.Rating, ShouldAlmostEqual, expectedW, 1e-9)
				So(winner.Wins, ShouldEqual, votes)
				So(winner.TotalComparisons, ShouldEqual, votes)

				loser, err := store.Get(ctx, repository.NamespacePrimary, p2)
				So(err, ShouldBeNil)
				So(loser.Rating, ShouldAlmostEqual, expectedL, 1e-9)
				So(loser.Losses, ShouldEqual, votes)
			})
		})
	})
}

func TestService_HistoryWarming(t *testing.T) {
	ctx := context.Background()

	Convey("Given a rater whose prior session is only in the log", t, func() {
		store := repository.NewMemStore()
		flaky := &flakyLog{Log: comparisonlog.NewMemLog()}
		svc := service.New(
			service.WithStore(store),
			service.WithComparisonLog(flaky),
			service.WithRand(rand.New(rand.NewSource(7))), //nolint:gosec // deterministic tests
			service.WithRecomputePolicy(service.PolicyImmediate),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		p1 := model.UserPhotoRef("m1")
		p2 := model.UserPhotoRef("m2")
		So(svc.AddItem(ctx, p1, model.GenderMale, "bob"), ShouldBeNil)
		So(svc.AddItem(ctx, p2, model.GenderMale, "dan"), ShouldBeNil)

		_, err := svc.SubmitComparison(ctx, p1, p2, "alice", "sess-1")
		So(err, ShouldBeNil)

		// Drop the cached history so the next call re-warms from the log.
		svc.ResetSession(ctx, "alice")

		Convey("When the first warm-up read fails", func() {
			flaky.setFailures(1)
			_, err := svc.NextPair(ctx, "alice", model.GenderFemale)
			So(err, ShouldNotBeNil)

			Convey("Then the next call re-warms and still honors the history", func() {
				_, err := svc.NextPair(ctx, "alice", model.GenderFemale)

				var ex *selection.ExhaustedError
				So(errors.As(err, &ex), ShouldBeTrue)
				So(ex.Reason, ShouldEqual, selection.ReasonNoContent)
			})
		})
	})
}

func TestService_LogAppendFailure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a comparison log that rejects appends", t, func() {
		store := repository.NewMemStore()
		rejecting := &rejectingLog{Log: comparisonlog.NewMemLog(), reject: true}
		svc := service.New(
			service.WithStore(store),
			service.WithComparisonLog(rejecting),
			service.WithRecomputePolicy(service.PolicyImmediate),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		p1 := model.UserPhotoRef("p1")
		p2 := model.UserPhotoRef("p2")
		So(svc.AddItem(ctx, p1, model.GenderMale, "bob"), ShouldBeNil)
		So(svc.AddItem(ctx, p2, model.GenderMale, "dan"), ShouldBeNil)

		Convey("When a comparison is submitted", func() {
			_, err := svc.SubmitComparison(ctx, p1, p2, "alice", "sess-1")
			So(err, ShouldNotBeNil)

			Convey("Then no rating moved in either namespace", func() {
				for _, ns := range []repository.Namespace{repository.NamespacePrimary, repository.NamespaceCombined} {
					item, err := store.Get(ctx, ns, p1)
					So(err, ShouldBeNil)
					So(item.Rating, ShouldEqual, model.InitialRating)
					So(item.TotalComparisons, ShouldEqual, 0)
				}
			})
		})
	})
}

func TestService_RecomputeAll(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with a history of votes", t, func() {
		store := repository.NewMemStore()
		svc := startService(ctx, store)
		defer svc.Stop()

		p1 := model.UserPhotoRef("p1")
		p2 := model.UserPhotoRef("p2")
		p3 := model.UserPhotoRef("p3")
		So(svc.AddItem(ctx, p1, model.GenderMale, "bob"), ShouldBeNil)
		So(svc.AddItem(ctx, p2, model.GenderMale, "dan"), ShouldBeNil)
		So(svc.AddItem(ctx, p3, model.GenderMale, "tom"), ShouldBeNil)

		votes := [][2]model.ItemRef{{p1, p2}, {p1, p3}, {p2, p3}, {p1, p2}}
		for _, v := range votes {
			_, err := svc.SubmitComparison(ctx, v[0], v[1], "alice", "sess-1")
			So(err, ShouldBeNil)
		}

		liveState := func(ref model.ItemRef) model.Item {
			item, err := store.Get(ctx, repository.NamespacePrimary, ref)
			So(err, ShouldBeNil)
			return item
		}
		before := map[model.ItemRef]model.Item{p1: liveState(p1), p2: liveState(p2), p3: liveState(p3)}

		Convey("When all ratings are rebuilt from the log", func() {
			report, err := svc.RecomputeAll(ctx)
			So(err, ShouldBeNil)

			Convey("Then the report accounts for every vote", func() {
				So(report.Replayed["user_photos"], ShouldEqual, len(votes))
				So(report.Replayed["combined"], ShouldEqual, len(votes))
				So(report.Skipped, ShouldBeEmpty)
			})

			Convey("Then the rebuilt state matches the live state exactly", func() {
				for ref, prev := range before {
					item := liveState(ref)
					So(item.Rating, ShouldAlmostEqual, prev.Rating, 1e-9)
					So(item.Wins, ShouldEqual, prev.Wins)
					So(item.Losses, ShouldEqual, prev.Losses)
					So(item.TotalComparisons, ShouldEqual, prev.TotalComparisons)
				}
			})

			Convey("Then the validator reports a consistent state", func() {
				findings, err := svc.Validate(ctx)
				So(err, ShouldBeNil)
				So(findings, ShouldBeEmpty)
			})
		})
	})
}

func TestService_TopN(t *testing.T) {
	ctx := context.Background()

	Convey("Given a cohort with an established order", t, func() {
		store := repository.NewMemStore()
		svc := startService(ctx, store)
		defer svc.Stop()

		p1 := model.UserPhotoRef("p1")
		p2 := model.UserPhotoRef("p2")
		p3 := model.UserPhotoRef("p3")
		So(svc.AddItem(ctx, p1, model.GenderMale, "bob"), ShouldBeNil)
		So(svc.AddItem(ctx, p2, model.GenderMale, "dan"), ShouldBeNil)
		So(svc.AddItem(ctx, p3, model.GenderMale, "tom"), ShouldBeNil)

		// p1 beats everyone, p2 beats p3.
		for _, v := range [][2]model.ItemRef{{p1, p2}, {p1, p3}, {p2, p3}} {
			_, err := svc.SubmitComparison(ctx, v[0], v[1], "alice", "sess-1")
			So(err, ShouldBeNil)
		}

		Convey("When the leaderboard is read", func() {
			entries, err := svc.TopN(ctx, model.CohortUserPhotos, 2)
			So(err, ShouldBeNil)

			Convey("Then entries come ranked by rating, capped at n", func() {
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[0].ID, ShouldEqual, "p1")
				So(entries[1].ID, ShouldEqual, "p2")
				So(entries[0].Rating, ShouldBeGreaterThan, entries[1].Rating)
			})
		})

		Convey("When the combined male cohort is read", func() {
			entries, err := svc.TopN(ctx, model.CohortCombinedMale, 10)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
		})
	})
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		store := repository.NewMemStore()
		svc := startService(ctx, store)
		defer svc.Stop()

		So(svc.AddItem(ctx, model.UserPhotoRef("p1"), model.GenderMale, "bob"), ShouldBeNil)

		Convey("Then stats expose item counts and configuration", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["policy"], ShouldEqual, "immediate")
			So(stats["primaryItems"], ShouldEqual, 1)
			So(stats["combinedItems"], ShouldEqual, 1)
		})
	})
}
