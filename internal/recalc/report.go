package recalc

import (
	"time"

	"github.com/bodiman/elocheck/internal/domain/model"
)

// Stream names, used for checkpoint keys and report counts.
const (
	StreamUserPhotos   = "user_photos"
	StreamSampleImages = "sample_images"
	StreamCombined     = "combined"
)

// RatingState is the rebuilt state of one item in one namespace.
type RatingState struct {
	Rating           float64
	Wins             int
	Losses           int
	TotalComparisons int
	Percentile       float64
	Confidence       float64
}

// SkippedRecord documents one log record the replay could not apply.
// Skips are tolerated so a single bad record cannot abort a rebuild,
// but every skip must be auditable.
type SkippedRecord struct {
	Seq      uint64         `json:"seq"`
	RecordID string         `json:"record_id"`
	Stream   string         `json:"stream"`
	Winner   model.ItemRef  `json:"winner"`
	Loser    model.ItemRef  `json:"loser"`
	Reason   string         `json:"reason"`
}

// Report summarizes a recalculation run.
type Report struct {
	Replayed map[string]int  `json:"replayed"`
	Skipped  []SkippedRecord `json:"skipped"`
	Resumed  bool            `json:"resumed"`
	Duration time.Duration   `json:"duration"`
}

// Result carries the three rebuilt cohort namespaces plus the report.
type Result struct {
	PhotoRatings    map[model.ItemRef]RatingState
	SampleRatings   map[model.ItemRef]RatingState
	CombinedRatings map[model.ItemRef]RatingState
	Report          Report
}
