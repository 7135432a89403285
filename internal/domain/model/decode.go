package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// MaxBodyBytes caps the size of a contact document.
const MaxBodyBytes = 1 << 20

// Sentinel kinds for decode failures. These allow errors.Is from callers.
var (
	ErrEmptyBody     = errors.New("empty body")
	ErrNotAnObject   = errors.New("body is not a JSON object")
	ErrMalformedBody = errors.New("malformed body")
	ErrBodyTooLarge  = errors.New("body too large")
)

// DecodeContact reads one contact document from r. The returned error wraps
// one of the sentinel kinds above; on success the contact is usable as is.
func DecodeContact(r io.Reader) (Contact, error) {
	if r == nil {
		return Contact{}, ErrEmptyBody
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return Contact{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	if len(raw) > MaxBodyBytes {
		return Contact{}, ErrBodyTooLarge
	}
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return Contact{}, ErrEmptyBody
	case raw[0] != '{':
		return Contact{}, ErrNotAnObject
	}

	var c Contact
	if err := json.Unmarshal(raw, &c); err != nil {
		return Contact{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return c, nil
}
