package auth

import (
	"context"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// KeySource resolves the public key that verifies a token signed under kid.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// tokenKeySource is implemented by key sources that want the whole token,
// for example to match its alg against the published key.
type tokenKeySource interface {
	TokenKey(ctx context.Context, t *jwt.Token) (any, error)
}

// StaticKeySource serves keys known at startup.
type StaticKeySource struct {
	// Keys maps key ids to public keys.
	Keys map[string]any
	// Default is used for tokens whose kid is empty or not in Keys.
	Default any
}

// Key implements KeySource.
func (s *StaticKeySource) Key(_ context.Context, kid string) (any, error) {
	if key, ok := s.Keys[kid]; ok {
		return key, nil
	}
	if s.Default != nil {
		return s.Default, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
}

// LoadPEMPublicKey reads an RSA public key from a PEM file.
func LoadPEMPublicKey(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing key %s: %w", path, err)
	}
	return key, nil
}
