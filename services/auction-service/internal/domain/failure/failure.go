// Package failure defines the error kinds every domain error is classified under.
// Domain packages wrap one of these with %w so callers can branch with errors.Is.
package failure

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConcurrency is a Conflict caused by concurrent writers that outlived the retry budget
	ErrConcurrency = fmt.Errorf("%w: concurrent modification", ErrConflict)
)

// Kind returns the most specific kind err belongs to, or nil when it is unclassified
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrValidation, ErrConcurrency, ErrConflict, ErrForbidden, ErrUnauthenticated} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
