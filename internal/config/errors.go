package config

import "errors"

// Validation errors returned by Load.
var (
	ErrEmptyAddr = errors.New("addr must not be empty")
	ErrBadPolicy = errors.New("recompute_policy must be immediate, debounced, or scheduled")
	ErrBadBounds = errors.New("invalid rating parameters")
)
