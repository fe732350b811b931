package service

import "errors"

// Sentinel errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrDuplicate  = errors.New("duplicate tracking event")
)
