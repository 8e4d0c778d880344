package model

import (
	"fmt"
	"time"
)

// ComparisonType classifies which populations a record touches.
type ComparisonType string

const (
	ComparisonUserPhotos   ComparisonType = "user_photos"
	ComparisonSampleImages ComparisonType = "sample_images"
	ComparisonMixed        ComparisonType = "mixed"
)

// TypeOf derives the comparison type from the two references.
func TypeOf(a, b ItemRef) ComparisonType {
	switch {
	case a.Kind == KindUserPhoto && b.Kind == KindUserPhoto:
		return ComparisonUserPhotos
	case a.Kind == KindSampleImage && b.Kind == KindSampleImage:
		return ComparisonSampleImages
	default:
		return ComparisonMixed
	}
}

// ComparisonRecord is one immutable entry of the append-only judgment
// log. The log, replayed in timestamp order, is the single source of
// truth for every rating.
type ComparisonRecord struct {
	RecordID  string         `json:"record_id"`
	Winner    ItemRef        `json:"winner"`
	Loser     ItemRef        `json:"loser"`
	Type      ComparisonType `json:"type"`
	RaterID   string         `json:"rater_id"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// Phase is the stage of the pair-selection state machine.
type Phase string

const (
	// PhaseUserOnly draws pairs exclusively from user photos.
	PhaseUserOnly Phase = "USER_ONLY"
	// PhaseCombined mixes sample images into the candidate pool.
	PhaseCombined Phase = "COMBINED"
)

// Pair is the ephemeral result of pair selection; never persisted.
type Pair struct {
	Left  ItemRef
	Right ItemRef
	Phase Phase
	// Message is set once per rater on the first COMBINED pair so the
	// host can tell the rater the pool changed.
	Message string
}

// Key returns the normalized key of the pair.
func (p Pair) Key() PairKey { return NewPairKey(p.Left, p.Right) }

// PairKey is the order-independent identity of an unordered pair.
// Comparable, so it works directly as a map key.
type PairKey struct {
	Lo, Hi ItemRef
}

// NewPairKey normalizes (a, b) so that NewPairKey(a, b) == NewPairKey(b, a).
func NewPairKey(a, b ItemRef) PairKey {
	if b.less(a) {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// String renders a stable textual form, useful for logs.
func (k PairKey) String() string {
	return fmt.Sprintf("%s|%s", k.Lo, k.Hi)
}

// Cohort names a set of items whose percentiles are computed relative
// to each other. Mixing cohorts corrupts ranking semantics.
type Cohort string

const (
	CohortUserPhotos     Cohort = "user_photos"
	CohortSampleImages   Cohort = "sample_images"
	CohortCombinedFemale Cohort = "combined_female"
	CohortCombinedMale   Cohort = "combined_male"
)

// Cohorts lists every cohort in a stable order.
func Cohorts() []Cohort {
	return []Cohort{CohortUserPhotos, CohortSampleImages, CohortCombinedFemale, CohortCombinedMale}
}

// CombinedCohort returns the gender slice of the combined namespace.
func CombinedCohort(g Gender) Cohort {
	if g == GenderMale {
		return CohortCombinedMale
	}
	return CohortCombinedFemale
}
