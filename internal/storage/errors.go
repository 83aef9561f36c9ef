package storage

import "errors"

// ErrDuplicatePosition is returned when creating a position whose ID
// already exists.
var ErrDuplicatePosition = errors.New("duplicate position")

// ErrPositionNotFound is returned when no position carries the given ID.
var ErrPositionNotFound = errors.New("position not found")
