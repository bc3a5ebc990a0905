// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across session/cart/checkout layers.
var (
	// ErrUnauthorized indicates the server rejected the access token.
	// Consumed inside the session manager; callers only ever see ErrSessionExpired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired indicates renewal failed and the credential was destroyed.
	ErrSessionExpired = errors.New("session expired")

	// ErrConflict indicates a business-rule conflict (single-shop cart violation).
	ErrConflict = errors.New("conflict")

	// ErrPrecondition indicates a state/configuration problem that retrying cannot fix
	// (empty cart, shop without coordinates).
	ErrPrecondition = errors.New("precondition failed")

	// ErrUnavailable indicates a transport failure or timeout; the operation may be retried.
	ErrUnavailable = errors.New("service unavailable")

	// ErrValidation indicates input the remote service rejected; not retried.
	ErrValidation = errors.New("validation failed")

	// ErrSuperseded indicates a response arrived after a newer request already completed.
	ErrSuperseded = errors.New("superseded")

	// ErrQuoteStale indicates the held delivery quote no longer matches the cart.
	ErrQuoteStale = errors.New("delivery quote stale")

	// ErrPlacementInFlight indicates PlaceOrder was called while a placement is running.
	ErrPlacementInFlight = errors.New("order placement already in flight")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
