package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signing methods accepted unless overridden.
var defaultValidMethods = []string{"RS256", "RS384", "RS512", "PS256"}

// Verifier validates bearer tokens against a KeySource.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	leeway   time.Duration
	methods  []string
	now      func() time.Time

	parser *jwt.Parser
}

// VerifierOption applies a configuration option to the Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the "iss" claim to equal issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithAudience requires the "aud" claim to contain audience.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) { v.audience = audience }
}

// WithLeeway tolerates clock skew on exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d >= 0 {
			v.leeway = d
		}
	}
}

// WithValidMethods restricts the accepted signing algorithms.
func WithValidMethods(methods ...string) VerifierOption {
	return func(v *Verifier) {
		if len(methods) > 0 {
			v.methods = methods
		}
	}
}

// WithVerifierClock replaces time.Now for expiry checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier builds a Verifier. Tokens without an expiry are rejected.
func NewVerifier(keys KeySource, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:    keys,
		methods: defaultValidMethods,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		popts = append(popts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		popts = append(popts, jwt.WithAudience(v.audience))
	}
	v.parser = jwt.NewParser(popts...)
	return v
}

type tokenClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id,omitempty"`
	Scope    scopes `json:"scope,omitempty"`
}

// Verify parses and validates raw. Every failure wraps ErrInvalidToken.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	var claims tokenClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if tk, ok := v.keys.(tokenKeySource); ok {
			return tk.TokenKey(ctx, t)
		}
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	p := &Principal{
		Subject:  claims.Subject,
		ClientID: claims.ClientID,
		Issuer:   claims.Issuer,
		Scopes:   []string(claims.Scope),
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
