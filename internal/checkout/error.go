package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// -- Validation & Input --
	ErrNoAddress        = errors.New("no shipping address")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNonPositiveTotal = errors.New("total must be positive")
	ErrNoCredentials    = errors.New("not signed in")

	// -- Machine State --
	ErrAttemptInProgress = errors.New("a checkout attempt is already in progress")
	ErrNotPrepared       = errors.New("checkout is not ready, prepare it first")
	ErrNoAttempt         = errors.New("no checkout attempt")
	ErrAwaitInProgress   = errors.New("outcome handed to the running attempt")
	ErrFinalizePending   = errors.New("a paid attempt is waiting for its order")
	ErrMethodMismatch    = errors.New("checkout was prepared for another payment method")

	// -- Attempt Outcome --
	ErrPaymentFailed      = errors.New("payment failed")
	ErrPaymentUnconfirmed = errors.New("payment not confirmed, check your orders")
	ErrPaymentCancelled   = errors.New("payment cancelled")

	// -- Journal --
	ErrUnknownAttempt = errors.New("unknown checkout attempt")
	ErrNotFinalizable = errors.New("attempt is not waiting for finalize")
)

// ValidationError names every precondition that stopped the machine from
// advancing. errors.Is matches each of them.
type ValidationError struct {
	Errs []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return "checkout validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error { return e.Errs }

// FinalizeError is returned when the gateway confirmed payment but the order
// could not be created. IntentID stays in the journal for RetryFinalize.
type FinalizeError struct {
	IntentID string
	Err      error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("payment %s confirmed but order was not created: %v", e.IntentID, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid checkout transition %s -> %s", e.From, e.To)
}
