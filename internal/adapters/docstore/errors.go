package docstore

import "errors"

// Sentinel errors returned by every Store implementation.
var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("invalid field path")
	ErrClosed      = errors.New("store closed")
	ErrUnavailable = errors.New("store unavailable")
	ErrTimeout     = errors.New("store timeout")
)
