package settings

import "errors"

var (
	// ErrNotFound is returned when a key has no live value at the index.
	ErrNotFound = errors.New("setting not found")

	// ErrNoSpace is returned when a value does not fit even after compaction.
	ErrNoSpace = errors.New("no space left for setting")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrNotInitialized = errors.New("settings store not initialized")
)
