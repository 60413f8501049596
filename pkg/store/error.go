package store

import "errors"

// ErrNotFound is returned when a record doesn't exist in the store.
var ErrNotFound = errors.New("record not found")

// IsNotFound reports whether err indicates an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
