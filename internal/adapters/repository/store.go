// Package repository defines the rating store contract and its
// in-memory implementation.
package repository

import (
	"context"

	"github.com/bodiman/elocheck/internal/domain/model"
)

// Namespace separates the per-variant ratings from the combined
// cross-population ratings. The same underlying item carries an
// independent rating in each namespace it belongs to.
type Namespace uint8

const (
	// NamespacePrimary holds per-variant ratings: user photos ranked
	// against user photos, samples against samples.
	NamespacePrimary Namespace = iota + 1
	// NamespaceCombined holds the cross-population ratings fed by all
	// comparison types, sliced per gender for percentiles.
	NamespaceCombined
)

// String returns a short name for logs and metrics labels.
func (n Namespace) String() string {
	switch n {
	case NamespacePrimary:
		return "primary"
	case NamespaceCombined:
		return "combined"
	default:
		return "unknown"
	}
}

// Store provides transactional access to rating state. Every mutation
// of a given item is serialized with respect to other writers of that
// item; a comparison touching two items performs one atomic pairwise
// read-modify-write via MutatePair.
type Store interface {
	// Create seeds a new item in the namespace.
	// Returns ErrAlreadyExists if the reference is taken.
	Create(ctx context.Context, ns Namespace, item model.Item) error

	// Get returns the current state of an item.
	// Returns ErrNotFound if the reference is unknown.
	Get(ctx context.Context, ns Namespace, ref model.ItemRef) (model.Item, error)

	// Mutate applies fn to the item's state under the item's write lock
	// and returns the post-mutation state. Returns ErrNotFound if the
	// reference is unknown. fn must not block.
	Mutate(ctx context.Context, ns Namespace, ref model.ItemRef, fn func(*model.Item)) (model.Item, error)

	// MutatePair applies fn to both items under their write locks as one
	// atomic pairwise read-modify-write: no other writer of either item
	// runs between the reads and the writes. a and b must be distinct.
	// Returns ErrNotFound if either reference is unknown. fn must not
	// block.
	MutatePair(ctx context.Context, ns Namespace, a, b model.ItemRef, fn func(a, b *model.Item)) (model.Item, model.Item, error)

	// ListActivePool returns active items of one variant and gender from
	// the primary namespace, excluding items owned by excludeOwner,
	// capped at limit. Order is unspecified.
	ListActivePool(ctx context.Context, kind model.Kind, gender model.Gender, excludeOwner string, limit int) ([]model.ItemRef, error)

	// ListCohort returns a snapshot of every item in the cohort,
	// active or not.
	ListCohort(ctx context.Context, cohort model.Cohort) ([]model.Item, error)

	// SetPercentiles writes freshly computed percentiles for a cohort.
	// Unknown references are ignored.
	SetPercentiles(ctx context.Context, cohort model.Cohort, percentiles map[model.ItemRef]float64) error

	// SetActive flips the active flag in both namespaces. Inactive items
	// leave the selection pool but keep their ratings and history.
	SetActive(ctx context.Context, ref model.ItemRef, active bool) error

	// TouchSamples bumps the last-used timestamp on sample items.
	// Best-effort; tolerates eventual consistency.
	TouchSamples(ctx context.Context, refs []model.ItemRef)

	// Count returns the number of items tracked in the namespace.
	Count(ctx context.Context, ns Namespace) int
}
