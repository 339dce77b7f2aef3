package payment

import (
	"errors"

	"checkout-core/internal/apiclient"
)

var (
	// -- Validation & Input --
	ErrInvalidAmount    = errors.New("amount must be a positive integer")
	ErrMissingOwner     = errors.New("email and cart id are required")
	ErrMissingIntent    = errors.New("intent id is required")
	ErrInvalidSignature = errors.New("invalid return signature")
	ErrMissingSignature = errors.New("return signature missing")

	// -- Gateway Response --
	ErrMissingRedirectURL = errors.New("gateway response has no redirect url")
	ErrMissingIntentID    = errors.New("gateway response has no intent id")
)

// HTTPError is a non-2xx answer from the gateway.
type HTTPError = apiclient.HTTPError
