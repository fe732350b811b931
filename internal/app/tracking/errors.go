package tracking

import "errors"

// Sentinel errors.
var (
	ErrNoData       = errors.New("no analytics data")
	ErrInvalidUser  = errors.New("invalid user address")
	ErrInvalidItem  = errors.New("invalid content item id")
	ErrInvalidTier  = errors.New("invalid tier")
	ErrInvalidEvent = errors.New("invalid tracking event")
	ErrUnknownEvent = errors.New("unknown tracking event")
)
