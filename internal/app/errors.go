package service

import "errors"

// Sentinel kinds for service errors. ErrValidation-wrapped failures map
// to client errors at the API boundary; consistency findings are
// reported by Validate, never raised mid-request.
var (
	ErrValidation    = errors.New("validation failed")
	ErrSameItem      = errors.New("winner and loser must be different items")
	ErrInvalidGender = errors.New("rater gender must be set")
	ErrNotStarted    = errors.New("service not started")
)
