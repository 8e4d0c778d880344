package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrNotFound      = errors.New("item not found")
	ErrAlreadyExists = errors.New("item already exists")
	ErrInvalidLimit  = errors.New("invalid pool limit")
)
