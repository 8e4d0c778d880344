// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry within one cohort.
type Entry struct {
	Rank             int     `json:"rank"`
	Kind             string  `json:"kind"`
	ID               string  `json:"id"`
	Rating           float64 `json:"rating"`
	Percentile       float64 `json:"percentile"`
	Confidence       float64 `json:"confidence"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	TotalComparisons int     `json:"total_comparisons"`
}
