package comparisonlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/bodiman/elocheck/internal/domain/model"
)

// Bucket names inside the bolt file.
var (
	bucketComparisons = []byte("comparisons")
	bucketCheckpoints = []byte("checkpoints")
)

const defaultOpenTimeout = 5 * time.Second

// BoltLog implements Log and Checkpointer on a single bbolt file.
// Records are keyed by a big-endian sequence number so cursor iteration
// yields them in append order.
type BoltLog struct {
	db *bolt.DB
}

// Option applies a configuration option when opening a BoltLog.
type Option func(*bolt.Options)

// WithOpenTimeout bounds how long Open waits for the file lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *bolt.Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// Open opens (creating if needed) the log file at path.
func Open(path string, opts ...Option) (*BoltLog, error) {
	boltOpts := &bolt.Options{Timeout: defaultOpenTimeout}
	for _, opt := range opts {
		opt(boltOpts)
	}

	db, err := bolt.Open(path, 0o600, boltOpts)
	if err != nil {
		return nil, fmt.Errorf("open comparison log: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketComparisons); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoints)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init comparison log buckets: %w", err)
	}

	return &BoltLog{db: db}, nil
}

// Close releases the underlying file.
func (l *BoltLog) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close comparison log: %w", err)
	}
	return nil
}

// Append adds a record to the end of the log.
func (l *BoltLog) Append(_ context.Context, rec model.ComparisonRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode comparison record: %w", err)
	}

	err = l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketComparisons)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), payload)
	})
	if err != nil {
		return fmt.Errorf("append comparison record: %w", err)
	}
	return nil
}

// ForEach streams records in append order from fromSeq.
func (l *BoltLog) ForEach(ctx context.Context, fromSeq uint64, fn func(seq uint64, rec model.ComparisonRecord) error) error {
	if fromSeq == 0 {
		fromSeq = 1
	}

	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketComparisons).Cursor()
		for k, v := c.Seek(seqKey(fromSeq)); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec model.ComparisonRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if err := fn(binary.BigEndian.Uint64(k), rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan comparison log: %w", err)
	}
	return nil
}

// ByRater returns every record submitted by one rater, in order.
func (l *BoltLog) ByRater(ctx context.Context, raterID string) ([]model.ComparisonRecord, error) {
	var out []model.ComparisonRecord
	err := l.ForEach(ctx, 1, func(_ uint64, rec model.ComparisonRecord) error {
		if rec.RaterID == raterID {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of records in the log.
func (l *BoltLog) Len(_ context.Context) (uint64, error) {
	var n uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(bucketComparisons).Stats().KeyN)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count comparison log: %w", err)
	}
	return n, nil
}

// SaveCheckpoint records that the stream has replayed through seq.
func (l *BoltLog) SaveCheckpoint(_ context.Context, stream string, seq uint64) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put([]byte(stream), seqKey(seq))
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", stream, err)
	}
	return nil
}

// Checkpoint returns the last saved sequence for the stream, or 0.
func (l *BoltLog) Checkpoint(_ context.Context, stream string) (uint64, error) {
	var seq uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCheckpoints).Get([]byte(stream))
		if len(v) == 8 {
			seq = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load checkpoint %q: %w", stream, err)
	}
	return seq, nil
}

// ResetCheckpoints clears all saved progress.
func (l *BoltLog) ResetCheckpoints(_ context.Context) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketCheckpoints); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketCheckpoints)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset checkpoints: %w", err)
	}
	return nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}
