// Package auth validates bearer tokens issued by an external authority and
// enforces scope-based access policies on HTTP routes.
package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Principal is the authenticated caller behind a validated token.
type Principal struct {
	Subject   string
	ClientID  string
	Issuer    string
	Scopes    []string
	ExpiresAt time.Time
}

// HasScope reports whether the principal was granted scope. A "scope" claim
// sent as a string is split on whitespace, so "read write" grants both, and
// an array claim is taken element by element. Matching is exact and case
// sensitive: "write" never matches "contacts.write".
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Scopes, scope)
}

type contextKeyPrincipal struct{}

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, p)
}

// PrincipalFromContext returns the principal stored by Authenticate, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKeyPrincipal{}).(*Principal)
	return p
}

// scopes decodes the "scope" claim. Issuers emit it either as a
// space-delimited string or as an array of strings.
type scopes []string

func (s *scopes) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = strings.Fields(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("scope claim must be a string or an array of strings: %w", err)
	}
	*s = many
	return nil
}
