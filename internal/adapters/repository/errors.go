package repository

import "errors"

// Sentinel errors.
var (
	ErrRecordNotFound = errors.New("analytics record not found")
	ErrInvalidTier    = errors.New("invalid tier")
)
