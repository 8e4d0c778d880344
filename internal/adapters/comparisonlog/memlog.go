package comparisonlog

import (
	"context"
	"sync"

	"github.com/bodiman/elocheck/internal/domain/model"
)

// MemLog implements Log and Checkpointer in memory. Suitable for tests
// and for hosts that own durability themselves.
type MemLog struct {
	mu          sync.RWMutex
	records     []model.ComparisonRecord
	checkpoints map[string]uint64
}

// NewMemLog creates an empty in-memory log.
func NewMemLog() *MemLog {
	return &MemLog{checkpoints: make(map[string]uint64)}
}

// Append adds a record to the end of the log.
func (l *MemLog) Append(_ context.Context, rec model.ComparisonRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// ForEach streams records in append order from fromSeq (1-based).
func (l *MemLog) ForEach(ctx context.Context, fromSeq uint64, fn func(seq uint64, rec model.ComparisonRecord) error) error {
	l.mu.RLock()
	snapshot := make([]model.ComparisonRecord, len(l.records))
	copy(snapshot, l.records)
	l.mu.RUnlock()

	if fromSeq == 0 {
		fromSeq = 1
	}
	for i := int(fromSeq) - 1; i < len(snapshot); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(uint64(i+1), snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

// ByRater returns every record submitted by one rater, in order.
func (l *MemLog) ByRater(_ context.Context, raterID string) ([]model.ComparisonRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []model.ComparisonRecord
	for _, rec := range l.records {
		if rec.RaterID == raterID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len returns the number of records in the log.
func (l *MemLog) Len(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.records)), nil
}

// SaveCheckpoint records that the stream has replayed through seq.
func (l *MemLog) SaveCheckpoint(_ context.Context, stream string, seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkpoints[stream] = seq
	return nil
}

// Checkpoint returns the last saved sequence for the stream, or 0.
func (l *MemLog) Checkpoint(_ context.Context, stream string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkpoints[stream], nil
}

// ResetCheckpoints clears all saved progress.
func (l *MemLog) ResetCheckpoints(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkpoints = make(map[string]uint64)
	return nil
}
