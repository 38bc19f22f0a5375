package store

import "errors"

// ErrRecordNotFound is returned when a requested record is not cached.
var ErrRecordNotFound = errors.New("record not found")
