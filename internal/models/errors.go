package models

import "errors"

// ErrUnknownRangeKey is returned when a range key is not in the range table.
var ErrUnknownRangeKey = errors.New("unknown range key")
