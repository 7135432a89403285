package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// FieldError names the config key that failed validation. It matches
// ErrInvalidConfig under errors.Is.
type FieldError struct {
	Key    string
	Reason string
}

func invalid(key, reason string) error {
	return &FieldError{Key: key, Reason: reason}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Key, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidConfig }
