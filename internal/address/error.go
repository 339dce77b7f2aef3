package address

import "errors"

var (
	// -- Validation & Input --
	ErrMissingLine1 = errors.New("address line is required")
	ErrMissingCity  = errors.New("city is required")
	ErrInvalidID    = errors.New("invalid address id")

	// -- Resource State --
	ErrAddressNotFound = errors.New("address not found")
)
