package auth

import "errors"

// Sentinel kinds for authentication and authorization failures.
var (
	ErrMissingToken      = errors.New("missing bearer token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInsufficientScope = errors.New("insufficient scope")
	ErrUnknownKey        = errors.New("unknown signing key")
	ErrKeySetFetch       = errors.New("fetch signing keys failed")
)
