package content

import "errors"

// ErrUnknownType is returned when a content type name is not recognised.
var ErrUnknownType = errors.New("unknown content type")
