package index

import "errors"

var (
	// ErrCorruptIndex indicates artifacts that are unreadable or disagree with
	// each other (counts, dimensions, versions).
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrNotBuilt indicates no manifest exists at the index location.
	ErrNotBuilt = errors.New("index has not been built")
)
