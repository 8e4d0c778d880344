// Package comparisonlog stores the append-only judgment log that every
// rating is derived from. Records are never updated or deleted;
// replaying the log in order rebuilds all rating state.
package comparisonlog

import (
	"context"

	"github.com/bodiman/elocheck/internal/domain/model"
)

// Log is the append-only comparison record store.
type Log interface {
	// Append adds a record to the end of the log.
	Append(ctx context.Context, rec model.ComparisonRecord) error

	// ForEach streams records in append (chronological) order starting
	// at sequence fromSeq (inclusive, 1-based). fn returning an error
	// stops iteration and propagates the error.
	ForEach(ctx context.Context, fromSeq uint64, fn func(seq uint64, rec model.ComparisonRecord) error) error

	// ByRater returns every record submitted by one rater, in order.
	// Used to warm a rater's pair history at session start.
	ByRater(ctx context.Context, raterID string) ([]model.ComparisonRecord, error)

	// Len returns the number of records in the log.
	Len(ctx context.Context) (uint64, error)
}

// Checkpointer persists per-stream replay progress so a batch
// recalculation can resume instead of restarting.
type Checkpointer interface {
	// SaveCheckpoint records that the stream has replayed through seq.
	SaveCheckpoint(ctx context.Context, stream string, seq uint64) error

	// Checkpoint returns the last saved sequence for the stream,
	// or 0 if none.
	Checkpoint(ctx context.Context, stream string) (uint64, error)

	// ResetCheckpoints clears all saved progress, forcing the next
	// recalculation to start from the beginning.
	ResetCheckpoints(ctx context.Context) error
}
