// Package service provides the core ranking service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bodiman/elocheck/internal/adapters/comparisonlog"
	refreshqueue "github.com/bodiman/elocheck/internal/adapters/mq/queue"
	workerpool "github.com/bodiman/elocheck/internal/adapters/mq/worker"
	repository "github.com/bodiman/elocheck/internal/adapters/repository"
	"github.com/bodiman/elocheck/internal/domain/history"
	"github.com/bodiman/elocheck/internal/domain/model"
	"github.com/bodiman/elocheck/internal/domain/percentile"
	"github.com/bodiman/elocheck/internal/domain/rating"
	"github.com/bodiman/elocheck/internal/domain/selection"
	"github.com/bodiman/elocheck/internal/domain/types"
	"github.com/bodiman/elocheck/internal/recalc"
	"github.com/bodiman/elocheck/pkg/logger"
	"github.com/bodiman/elocheck/pkg/metrics"
)

// RecomputePolicy controls when cohort percentiles are refreshed after
// a vote. Under any non-immediate policy percentiles are eventually
// consistent within the policy's staleness window.
type RecomputePolicy string

const (
	// PolicyImmediate refreshes affected cohorts inline on every vote.
	PolicyImmediate RecomputePolicy = "immediate"
	// PolicyDebounced enqueues a refresh after every N votes per cohort.
	PolicyDebounced RecomputePolicy = "debounced"
	// PolicyScheduled enqueues refreshes for dirty cohorts every T.
	PolicyScheduled RecomputePolicy = "scheduled"
)

// ComparisonResult is what a submitted comparison returns to the host.
type ComparisonResult struct {
	NewWinnerRating float64
	NewLoserRating  float64
}

// Finding is one diagnostic issue surfaced by Validate.
type Finding struct {
	Namespace string        `json:"namespace"`
	Ref       model.ItemRef `json:"ref"`
	Issue     string        `json:"issue"`
}

// Service implements the ranking engine's external interface.
type Service struct {
	mu sync.RWMutex

	// recalcMu serializes live submissions against full rebuilds:
	// submissions hold the read side, RecomputeAll the write side.
	recalcMu sync.RWMutex

	// Core components
	store       repository.Store
	compLog     comparisonlog.Log
	hist        history.History
	selector    *selection.Selector
	updater     *rating.Updater
	calc        *percentile.Calculator
	refreshQ    refreshqueue.Queue
	workers     *workerpool.Pool
	rescaleMean bool

	// Configuration
	workerCount      int
	queueSize        int
	poolSize         int
	policy           RecomputePolicy
	debounceVotes    int
	scheduleInterval time.Duration
	rng              *rand.Rand

	// Recompute bookkeeping
	pendingMu sync.Mutex
	pending   map[model.Cohort]int
	warmed    map[string]struct{}

	// State
	started bool
	stopCh  chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects the rating store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithComparisonLog injects the append-only judgment log. Defaults to
// an in-memory log.
func WithComparisonLog(l comparisonlog.Log) Option {
	return func(s *Service) {
		if l != nil {
			s.compLog = l
		}
	}
}

// WithRecomputePolicy selects when percentiles refresh.
func WithRecomputePolicy(p RecomputePolicy) Option {
	return func(s *Service) {
		switch p {
		case PolicyImmediate, PolicyDebounced, PolicyScheduled:
			s.policy = p
		}
	}
}

// WithDebounceVotes sets the per-cohort vote count that triggers a
// refresh under the debounced policy.
func WithDebounceVotes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.debounceVotes = n
		}
	}
}

// WithScheduleInterval sets the refresh period under the scheduled
// policy.
func WithScheduleInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.scheduleInterval = d
		}
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the refresh queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPoolSize caps how many candidates per variant feed pair selection.
func WithPoolSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.poolSize = size
		}
	}
}

// WithUpdater overrides the rating updater (learning rate, bounds).
func WithUpdater(u *rating.Updater) Option {
	return func(s *Service) {
		if u != nil {
			s.updater = u
		}
	}
}

// WithMinComparisons sets the percentile eligibility floor.
func WithMinComparisons(n int) Option {
	return func(s *Service) {
		s.calc = percentile.New(percentile.WithMinComparisons(n))
	}
}

// WithRand injects the selection random source for reproducible tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithMeanRescale toggles drift correction during full rebuilds.
func WithMeanRescale(enabled bool) Option {
	return func(s *Service) {
		s.rescaleMean = enabled
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		updater:          rating.New(),
		calc:             percentile.New(),
		workerCount:      2,
		queueSize:        1024,
		poolSize:         50,
		policy:           PolicyImmediate,
		debounceVotes:    10,
		scheduleInterval: 30 * time.Second,
		pending:          make(map[model.Cohort]int),
		warmed:           make(map[string]struct{}),
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting ranking service...")

	if s.store == nil {
		s.store = repository.NewMemStore()
	}
	if s.compLog == nil {
		s.compLog = comparisonlog.NewMemLog()
	}
	s.hist = history.NewInMemoryHistory()

	selOpts := []selection.Option{selection.WithMaxPoolSize(s.poolSize)}
	if s.rng != nil {
		selOpts = append(selOpts, selection.WithRand(s.rng))
	}
	s.selector = selection.New(s.hist, selOpts...)

	s.refreshQ = refreshqueue.NewInMemoryQueue(refreshqueue.WithCapacity(s.queueSize))
	s.workers = workerpool.NewPool(s.workerCount, s.refreshQ, s)
	s.workers.Start(ctx)

	if s.policy == PolicyScheduled {
		go s.scheduleLoop(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.String("policy", string(s.policy)),
		logger.Int("workers", s.workerCount),
		logger.Int("poolSize", s.poolSize),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping ranking service...")

	if s.refreshQ != nil {
		_ = s.refreshQ.Close()
	}
	if s.workers != nil {
		s.workers.Stop()
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(context.Background(), "ranking service stopped")
}

// AddItem registers an entity in the rankable pool: one entry in its
// variant namespace and one in the combined namespace, both seeded at
// the initial rating.
func (s *Service) AddItem(ctx context.Context, ref model.ItemRef, gender model.Gender, ownerID string) error {
	if !gender.Valid() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidGender)
	}
	item := model.NewItem(ref, gender, ownerID)
	if err := s.store.Create(ctx, repository.NamespacePrimary, item); err != nil {
		return fmt.Errorf("create %s: %w", ref, err)
	}
	if err := s.store.Create(ctx, repository.NamespaceCombined, item); err != nil {
		return fmt.Errorf("create combined %s: %w", ref, err)
	}
	return nil
}

// SetItemActive flips pool membership without touching rating state.
func (s *Service) SetItemActive(ctx context.Context, ref model.ItemRef, active bool) error {
	if err := s.store.SetActive(ctx, ref, active); err != nil {
		return fmt.Errorf("set active %s: %w", ref, err)
	}
	return nil
}

// NextPair returns the next pair for a rater, or a selection.ExhaustedError.
func (s *Service) NextPair(ctx context.Context, raterID string, raterGender model.Gender) (model.Pair, error) {
	if raterID == "" || !raterGender.Valid() {
		metrics.RecordComparisonRejected("invalid_rater")
		return model.Pair{}, fmt.Errorf("%w: %w", ErrValidation, ErrInvalidGender)
	}

	target := raterGender.Opposite()
	userItems, err := s.store.ListActivePool(ctx, model.KindUserPhoto, target, raterID, s.poolSize)
	if err != nil {
		return model.Pair{}, fmt.Errorf("list user pool: %w", err)
	}
	sampleItems, err := s.store.ListActivePool(ctx, model.KindSampleImage, target, "", s.poolSize)
	if err != nil {
		return model.Pair{}, fmt.Errorf("list sample pool: %w", err)
	}

	if err := s.warmHistory(ctx, raterID); err != nil {
		return model.Pair{}, err
	}

	pair, err := s.selector.NextPair(ctx, raterID, selection.Pool{
		UserItems:   userItems,
		SampleItems: sampleItems,
	})
	if err != nil {
		if ex, ok := err.(*selection.ExhaustedError); ok {
			metrics.RecordPairExhausted(string(ex.Reason))
		}
		return model.Pair{}, err
	}

	s.store.TouchSamples(ctx, []model.ItemRef{pair.Left, pair.Right})
	metrics.RecordPairSelection(string(pair.Phase))
	return pair, nil
}

// SubmitComparison applies one judgment: updates ratings in the
// affected namespaces, appends the record to the log, marks the pair
// seen, and schedules percentile refreshes per the recompute policy.
func (s *Service) SubmitComparison(ctx context.Context, winner, loser model.ItemRef, raterID, sessionID string) (ComparisonResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRatingUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if winner == loser {
		metrics.RecordComparisonRejected("same_item")
		return ComparisonResult{}, fmt.Errorf("%w: %w", ErrValidation, ErrSameItem)
	}
	if raterID == "" {
		metrics.RecordComparisonRejected("missing_rater")
		return ComparisonResult{}, fmt.Errorf("%w: missing rater id", ErrValidation)
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	// Full rebuilds are exclusive; everyone else shares the read side.
	s.recalcMu.RLock()
	defer s.recalcMu.RUnlock()

	compType := model.TypeOf(winner, loser)

	// Existence and gender come from the combined namespace, which holds
	// every item regardless of variant.
	winnerItem, err := s.store.Get(ctx, repository.NamespaceCombined, winner)
	if err != nil {
		return ComparisonResult{}, fmt.Errorf("winner %s: %w", winner, err)
	}
	if _, err := s.store.Get(ctx, repository.NamespaceCombined, loser); err != nil {
		return ComparisonResult{}, fmt.Errorf("loser %s: %w", loser, err)
	}

	// The log is the source of truth for rebuilds, so the record lands
	// before any rating moves.
	rec := model.ComparisonRecord{
		RecordID:  uuid.New().String(),
		Winner:    winner,
		Loser:     loser,
		Type:      compType,
		RaterID:   raterID,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
	if err := s.compLog.Append(ctx, rec); err != nil {
		return ComparisonResult{}, fmt.Errorf("append comparison record: %w", err)
	}

	var result ComparisonResult
	if compType != model.ComparisonMixed {
		newW, newL, err := s.applyOutcome(ctx, repository.NamespacePrimary, winner, loser)
		if err != nil {
			return ComparisonResult{}, err
		}
		result = ComparisonResult{NewWinnerRating: newW, NewLoserRating: newL}
	}

	newCW, newCL, err := s.applyOutcome(ctx, repository.NamespaceCombined, winner, loser)
	if err != nil {
		return ComparisonResult{}, err
	}
	if compType == model.ComparisonMixed {
		result = ComparisonResult{NewWinnerRating: newCW, NewLoserRating: newCL}
	}

	s.hist.Record(ctx, raterID, winner, loser)
	metrics.RecordComparisonProcessed()

	for _, cohort := range affectedCohorts(compType, winnerItem.Gender) {
		s.scheduleRefresh(ctx, cohort)
	}
	return result, nil
}

// applyOutcome applies the winner/loser update for one namespace as a
// single pairwise read-modify-write: both ratings are read, stepped,
// and written without any other writer of either item in between.
func (s *Service) applyOutcome(ctx context.Context, ns repository.Namespace, winner, loser model.ItemRef) (float64, float64, error) {
	updatedW, updatedL, err := s.store.MutatePair(ctx, ns, winner, loser, func(w, l *model.Item) {
		w.Rating, l.Rating = s.updater.Update(w.Rating, l.Rating)
		w.Wins++
		w.TotalComparisons++
		w.Confidence = rating.Confidence(w.TotalComparisons)
		l.Losses++
		l.TotalComparisons++
		l.Confidence = rating.Confidence(l.TotalComparisons)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("update %s vs %s: %w", winner, loser, err)
	}
	return updatedW.Rating, updatedL.Rating, nil
}

// GetPercentile returns the current percentile of an item in its
// variant cohort.
func (s *Service) GetPercentile(ctx context.Context, ref model.ItemRef) (float64, error) {
	item, err := s.store.Get(ctx, repository.NamespacePrimary, ref)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", ref, err)
	}
	return item.Percentile, nil
}

// RefreshCohort recomputes percentiles for one cohort. Implements the
// worker pool's Refresher interface; also called inline under the
// immediate policy.
func (s *Service) RefreshCohort(ctx context.Context, job refreshqueue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordPercentileRefreshDuration(float64(time.Since(start).Milliseconds()))
	}()

	items, err := s.store.ListCohort(ctx, job.Cohort)
	if err != nil {
		return fmt.Errorf("list cohort %s: %w", job.Cohort, err)
	}

	ranked := make([]percentile.Ranked, len(items))
	for i, it := range items {
		ranked[i] = percentile.Ranked{
			Ref:              it.Ref,
			Rating:           it.Rating,
			TotalComparisons: it.TotalComparisons,
		}
	}

	percentiles := s.calc.Compute(ranked)
	if err := s.store.SetPercentiles(ctx, job.Cohort, percentiles); err != nil {
		return fmt.Errorf("write percentiles %s: %w", job.Cohort, err)
	}
	metrics.RecordPercentileRefresh(string(job.Cohort))
	return nil
}

// RecomputeAll rebuilds every rating namespace from the comparison log.
// Exclusive: blocks all live submissions for the duration.
func (s *Service) RecomputeAll(ctx context.Context) (*recalc.Report, error) {
	s.recalcMu.Lock()
	defer s.recalcMu.Unlock()

	photos, err := s.store.ListCohort(ctx, model.CohortUserPhotos)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	samples, err := s.store.ListCohort(ctx, model.CohortSampleImages)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	items := append(photos, samples...)

	opts := []recalc.Option{
		recalc.WithUpdater(s.updater),
		recalc.WithCalculator(s.calc),
		recalc.WithMeanRescale(s.rescaleMean),
	}
	if cp, ok := s.compLog.(comparisonlog.Checkpointer); ok {
		opts = append(opts, recalc.WithCheckpointer(cp))
	}

	result, err := recalc.New(s.compLog, opts...).RecomputeAll(ctx, items)
	if err != nil {
		return nil, err
	}

	if err := s.applyRecalc(ctx, repository.NamespacePrimary, result.PhotoRatings); err != nil {
		return nil, err
	}
	if err := s.applyRecalc(ctx, repository.NamespacePrimary, result.SampleRatings); err != nil {
		return nil, err
	}
	if err := s.applyRecalc(ctx, repository.NamespaceCombined, result.CombinedRatings); err != nil {
		return nil, err
	}

	report := result.Report
	return &report, nil
}

func (s *Service) applyRecalc(ctx context.Context, ns repository.Namespace, state map[model.ItemRef]recalc.RatingState) error {
	for ref, st := range state {
		_, err := s.store.Mutate(ctx, ns, ref, func(it *model.Item) {
			it.Rating = st.Rating
			it.Wins = st.Wins
			it.Losses = st.Losses
			it.TotalComparisons = st.TotalComparisons
			it.Percentile = st.Percentile
			it.Confidence = st.Confidence
		})
		if err != nil {
			return fmt.Errorf("apply recalc %s/%s: %w", ns, ref, err)
		}
	}
	return nil
}

// Validate runs the consistency and bounds diagnostics. Findings are
// reported, never auto-corrected; an operator decides whether a rebuild
// is warranted.
func (s *Service) Validate(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, cohort := range model.Cohorts() {
		items, err := s.store.ListCohort(ctx, cohort)
		if err != nil {
			return nil, fmt.Errorf("list cohort %s: %w", cohort, err)
		}
		ns := repository.NamespacePrimary
		if cohort == model.CohortCombinedFemale || cohort == model.CohortCombinedMale {
			ns = repository.NamespaceCombined
		}
		for _, it := range items {
			if it.Wins+it.Losses != it.TotalComparisons {
				findings = append(findings, Finding{
					Namespace: ns.String(),
					Ref:       it.Ref,
					Issue:     fmt.Sprintf("wins+losses=%d, total=%d", it.Wins+it.Losses, it.TotalComparisons),
				})
			}
			if !s.updater.InBounds(it.Rating) {
				findings = append(findings, Finding{
					Namespace: ns.String(),
					Ref:       it.Ref,
					Issue:     fmt.Sprintf("rating %.4f out of bounds", it.Rating),
				})
			}
		}
	}
	return findings, nil
}

// TopN returns the top n leaderboard entries of one cohort, ordered by
// rating with the same deterministic tie-break percentiles use.
func (s *Service) TopN(ctx context.Context, cohort model.Cohort, n int) ([]types.Entry, error) {
	items, err := s.store.ListCohort(ctx, cohort)
	if err != nil {
		return nil, fmt.Errorf("list cohort %s: %w", cohort, err)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.TotalComparisons != b.TotalComparisons {
			return a.TotalComparisons > b.TotalComparisons
		}
		if a.Ref.Kind != b.Ref.Kind {
			return a.Ref.Kind < b.Ref.Kind
		}
		return a.Ref.ID < b.Ref.ID
	})
	if n < len(items) {
		items = items[:n]
	}

	entries := make([]types.Entry, len(items))
	for i, it := range items {
		entries[i] = types.Entry{
			Rank:             i + 1,
			Kind:             it.Ref.Kind.String(),
			ID:               it.Ref.ID,
			Rating:           it.Rating,
			Percentile:       it.Percentile,
			Confidence:       it.Confidence,
			Wins:             it.Wins,
			Losses:           it.Losses,
			TotalComparisons: it.TotalComparisons,
		}
	}
	return entries, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"policy":      string(s.policy),
		"workerCount": s.workerCount,
		"poolSize":    s.poolSize,
	}
	if s.started {
		stats["queueLength"] = s.refreshQ.Len(ctx)
		stats["primaryItems"] = s.store.Count(ctx, repository.NamespacePrimary)
		stats["combinedItems"] = s.store.Count(ctx, repository.NamespaceCombined)
		stats["historySize"] = s.hist.Size()
	}
	return stats
}

// ResetSession drops a rater's cached history and transition flag so
// the next NextPair re-warms from the log.
func (s *Service) ResetSession(ctx context.Context, raterID string) {
	s.pendingMu.Lock()
	delete(s.warmed, raterID)
	s.pendingMu.Unlock()
	s.hist.Forget(ctx, raterID)
	s.selector.ResetTransition(raterID)
}

// warmHistory loads the rater's pair history from the log once per
// session. The rater is marked warmed only after the log read succeeds;
// a failed read is retried on the next call.
func (s *Service) warmHistory(ctx context.Context, raterID string) error {
	s.pendingMu.Lock()
	_, done := s.warmed[raterID]
	s.pendingMu.Unlock()
	if done {
		return nil
	}

	records, err := s.compLog.ByRater(ctx, raterID)
	if err != nil {
		return fmt.Errorf("warm history for %s: %w", raterID, err)
	}
	s.hist.Warm(ctx, raterID, records)

	s.pendingMu.Lock()
	s.warmed[raterID] = struct{}{}
	s.pendingMu.Unlock()
	return nil
}

// scheduleRefresh routes a cohort refresh per the recompute policy.
func (s *Service) scheduleRefresh(ctx context.Context, cohort model.Cohort) {
	switch s.policy {
	case PolicyImmediate:
		if err := s.RefreshCohort(ctx, refreshqueue.Job{Cohort: cohort}); err != nil {
			s.logger.Error(ctx, "immediate refresh failed",
				logger.String("cohort", string(cohort)),
				logger.Error(err),
			)
		}
	case PolicyDebounced:
		s.pendingMu.Lock()
		s.pending[cohort]++
		due := s.pending[cohort] >= s.debounceVotes
		if due {
			s.pending[cohort] = 0
		}
		s.pendingMu.Unlock()
		if due {
			s.enqueueRefresh(ctx, cohort)
		}
	case PolicyScheduled:
		s.pendingMu.Lock()
		s.pending[cohort]++
		s.pendingMu.Unlock()
	}
}

func (s *Service) enqueueRefresh(ctx context.Context, cohort model.Cohort) {
	if !s.refreshQ.Enqueue(ctx, refreshqueue.Job{Cohort: cohort}) {
		s.logger.Warn(ctx, "refresh queue rejected job", logger.String("cohort", string(cohort)))
	}
}

// scheduleLoop flushes dirty cohorts every scheduleInterval.
func (s *Service) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.scheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pendingMu.Lock()
			dirty := make([]model.Cohort, 0, len(s.pending))
			for cohort, votes := range s.pending {
				if votes > 0 {
					dirty = append(dirty, cohort)
					s.pending[cohort] = 0
				}
			}
			s.pendingMu.Unlock()
			for _, cohort := range dirty {
				s.enqueueRefresh(ctx, cohort)
			}
		}
	}
}

// affectedCohorts lists the cohorts a comparison of this type dirties.
// Both items in any pair share a gender (pools are single-gender), so
// one combined slice is affected.
func affectedCohorts(t model.ComparisonType, gender model.Gender) []model.Cohort {
	combined := model.CombinedCohort(gender)
	switch t {
	case model.ComparisonUserPhotos:
		return []model.Cohort{model.CohortUserPhotos, combined}
	case model.ComparisonSampleImages:
		return []model.Cohort{model.CohortSampleImages, combined}
	default:
		return []model.Cohort{combined}
	}
}
