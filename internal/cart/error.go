package cart

import (
	"errors"
	"fmt"
)

var (
	// -- Validation & Input --
	ErrInvalidQuantity = errors.New("invalid cart quantity")
	ErrInvalidPrice    = errors.New("invalid cart price")
	ErrMissingOwner    = errors.New("cart owner (email and cart id) is required")

	// -- Resource State --
	ErrLineNotFound     = errors.New("cart line not found")
	ErrMutationInFlight = errors.New("a change to this cart line is still in flight")
	ErrCartNotFound     = errors.New("cart not found")

	// -- Backend Failures --
	ErrMutationFailed = errors.New("cart change was rejected by the server")
	ErrRefreshFailed  = errors.New("failed to refresh cart from server")
)

// RollbackError reports that a rejected mutation was undone locally.
type RollbackError struct {
	Op  string
	Key Key
	Err error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s %s rolled back: %v", e.Op, e.Key, e.Err)
}

func (e *RollbackError) Unwrap() []error {
	return []error{ErrMutationFailed, e.Err}
}
