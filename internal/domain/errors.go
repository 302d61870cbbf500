package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound    = errors.New("requested record not found")
	ErrUnknownCity = errors.New("unknown city")
)
