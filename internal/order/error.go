package order

import "errors"

var (
	// -- Validation & Input --
	ErrMissingIntentID = errors.New("intent id is required to finalize")
	ErrMissingOwner    = errors.New("email and cart id are required")
	ErrMissingOrderID  = errors.New("order id is required")

	// -- Resource State --
	ErrOrderNotFound = errors.New("order not found")
	ErrNoOrders      = errors.New("user has no orders")
)
