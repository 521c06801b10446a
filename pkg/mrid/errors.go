package mrid

import "errors"

// ErrExhausted is returned when the id space has no free slots left
// below the reserved ceiling.
var ErrExhausted = errors.New("mrid: id space exhausted")
