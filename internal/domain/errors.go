package domain

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

var (
	// ErrNotFound is the sentinel error for missing resources.
	ErrNotFound = NotFoundError{}
	// ErrEntityNotFound matches ErrNotFound as well.
	ErrEntityNotFound = NotFoundError{Resource: "entity"}

	ErrSelfVouch           = errors.New("cannot vouch for yourself")
	ErrDuplicateVouch      = errors.New("already vouched")
	ErrEntityExists        = errors.New("entity already exists")
	ErrUnauthenticated     = errors.New("requester is not authenticated")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidEconomy      = errors.New("invalid economy")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// IsRetryable reports whether err may succeed when the same operation is
// attempted again. Only transaction conflicts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}
