package domain

import "errors"

var (
	// requested record is missing.
	ErrMissing = errors.New("missing")

	// requested change conflicts with the current records.
	ErrConflict = errors.New("conflict")
)
