// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Rating lifecycle constants shared by every component that seeds items.
const (
	InitialRating     = 1.0
	InitialPercentile = 50.0
)

// Kind discriminates the two ranked-item populations.
type Kind uint8

const (
	// KindUserPhoto is a photo submitted by a real user.
	KindUserPhoto Kind = iota + 1
	// KindSampleImage is a calibration image seeded by the operator.
	KindSampleImage
)

// String returns the stable wire name for the kind.
func (k Kind) String() string {
	switch k {
	case KindUserPhoto:
		return "photo"
	case KindSampleImage:
		return "sample"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "photo":
		return KindUserPhoto, nil
	case "sample":
		return KindSampleImage, nil
	default:
		return 0, fmt.Errorf("unknown item kind %q", s)
	}
}

// ItemRef identifies a ranked item. The kind keeps the two id spaces
// apart, so photo "42" and sample "42" never collide.
type ItemRef struct {
	Kind Kind
	ID   string
}

// UserPhotoRef builds a reference to a user photo.
func UserPhotoRef(id string) ItemRef { return ItemRef{Kind: KindUserPhoto, ID: id} }

// SampleImageRef builds a reference to a sample image.
func SampleImageRef(id string) ItemRef { return ItemRef{Kind: KindSampleImage, ID: id} }

// IsZero reports whether the reference is unset.
func (r ItemRef) IsZero() bool { return r.Kind == 0 && r.ID == "" }

// String renders "photo:42" / "sample:7" for logs and API paths.
func (r ItemRef) String() string { return r.Kind.String() + ":" + r.ID }

// less gives ItemRef a total order: kind first, then id.
func (r ItemRef) less(other ItemRef) bool {
	if r.Kind != other.Kind {
		return r.Kind < other.Kind
	}
	return r.ID < other.ID
}

// Gender scopes pools and combined cohorts.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Valid reports whether the gender is one of the known values.
func (g Gender) Valid() bool { return g == GenderFemale || g == GenderMale }

// Opposite returns the pool a rater of gender g draws pairs from.
func (g Gender) Opposite() Gender {
	if g == GenderFemale {
		return GenderMale
	}
	return GenderFemale
}

// Item is the mutable rating state of one ranked entity within one
// namespace. The same underlying photo appears once in its variant
// namespace and once in the combined namespace; the two copies evolve
// independently.
type Item struct {
	Ref              ItemRef
	Gender           Gender
	OwnerID          string // rater who submitted the photo; empty for samples
	Active           bool   // inactive items keep their rating but leave the pool
	Rating           float64
	Wins             int
	Losses           int
	TotalComparisons int
	Percentile       float64
	Confidence       float64
	LastUsed         time.Time // samples only: last time shown in a pair
	LastUpdated      time.Time
}

// NewItem seeds an item the way every entity enters the rankable pool.
func NewItem(ref ItemRef, gender Gender, ownerID string) Item {
	return Item{
		Ref:         ref,
		Gender:      gender,
		OwnerID:     ownerID,
		Active:      true,
		Rating:      InitialRating,
		Percentile:  InitialPercentile,
		LastUpdated: time.Now(),
	}
}
