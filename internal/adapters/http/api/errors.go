package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInvalidID  = errors.New("contact id must be an integer")
)
