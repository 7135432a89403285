package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/okian/contacts/pkg/logger"
	"github.com/okian/contacts/pkg/metrics"
)

// Failure reasons reported to metrics.
const (
	reasonMissingToken      = "missing_token"
	reasonInvalidToken      = "invalid_token"
	reasonInsufficientScope = "insufficient_scope"
)

// Middleware wraps a handler. It is shape-compatible with mux.MiddlewareFunc.
type Middleware = func(http.Handler) http.Handler

// Authenticate validates the bearer token and stores the Principal in the
// request context. Requests without a valid token are answered with 401 and
// never reach next.
func Authenticate(v *Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.FromContext(ctx)

			raw, ok := bearerToken(r)
			if !ok {
				metrics.RecordAuthFailure(reasonMissingToken)
				log.Debug(ctx, "request without bearer token", logger.String("path", r.URL.Path))
				unauthorized(w, `Bearer`, ErrMissingToken)
				return
			}

			p, err := v.Verify(ctx, raw)
			if err != nil {
				metrics.RecordAuthFailure(reasonInvalidToken)
				log.Info(ctx, "rejected bearer token", logger.Error(err))
				unauthorized(w, `Bearer error="invalid_token"`, ErrInvalidToken)
				return
			}

			ctx = ContextWithPrincipal(ctx, p)
			ctx = logger.WithContext(ctx, log.With(logger.String("subject", p.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope answers 403 unless the authenticated principal holds scope.
// A request that reaches it without a principal gets 401.
func RequireScope(scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				metrics.RecordAuthFailure(reasonMissingToken)
				unauthorized(w, `Bearer`, ErrMissingToken)
				return
			}
			if !p.HasScope(scope) {
				metrics.RecordAuthFailure(reasonInsufficientScope)
				logger.FromContext(r.Context()).Info(r.Context(), "missing required scope",
					logger.String("scope", scope),
					logger.Any("granted", p.Scopes),
				)
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+scope+`"`)
				writeError(w, http.StatusForbidden, reasonInsufficientScope, ErrInsufficientScope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Policy is a named, ordered list of middleware guarding a route.
type Policy struct {
	Name  string
	Chain []Middleware
}

// RequireScopePolicy builds a policy that authenticates with v and then
// demands scope.
func RequireScopePolicy(name string, v *Verifier, scope string) Policy {
	return Policy{
		Name:  name,
		Chain: []Middleware{Authenticate(v), RequireScope(scope)},
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func unauthorized(w http.ResponseWriter, challenge string, err error) {
	w.Header().Set("WWW-Authenticate", challenge)
	code := reasonInvalidToken
	if errors.Is(err, ErrMissingToken) {
		code = reasonMissingToken
	}
	writeError(w, http.StatusUnauthorized, code, err)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: err.Error()})
}
