package domain

import "errors"

var (
	// ErrNotFound covers both missing entities and entities the caller may not see.
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")
)
