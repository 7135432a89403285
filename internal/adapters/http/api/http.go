// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/okian/contacts/internal/adapters/auth"
	"github.com/okian/contacts/internal/domain/model"
	"github.com/okian/contacts/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	GetAll(ctx context.Context) []model.Contact
	// Get returns an error wrapping repository.ErrNotFound when id is unknown.
	Get(ctx context.Context, id model.ContactID) (model.Contact, error)
	Add(ctx context.Context, c model.Contact) model.Contact
	// Update and Delete report unknown ids as errors; the API treats them as no-ops.
	Update(ctx context.Context, c model.Contact) error
	Delete(ctx context.Context, id model.ContactID) error
}

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Chain wraps h so that a request passes mws in order, mws[0] first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Server wires HTTP routes for the contacts API.
type Server struct {
	contactsHandler *ContactsHandler
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler

	policy auth.Policy
	docs   func(*mux.Router)
	log    logger.Logger
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithDocs registers documentation routes on the router.
func WithDocs(register func(*mux.Router)) ServerOption {
	return func(s *Server) { s.docs = register }
}

// WithLogger sets the logger used for panics and request logs.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server. policy guards every route that
// changes contacts.
func NewServer(deps Dependencies, statsProvider StatsProvider, policy auth.Policy, opts ...ServerOption) *Server {
	s := &Server{
		contactsHandler: NewContactsHandler(deps),
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		policy:          policy,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("http")
	}
	return s
}

// Router builds the route table. Each route is a method and path matched to
// an explicit middleware list.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	c := s.contactsHandler

	public := func(endpoint string) []Middleware {
		return []Middleware{RequestLogger(s.log), MetricsMiddleware(endpoint)}
	}
	guarded := func(endpoint string) []Middleware {
		return append(public(endpoint), s.policy.Chain...)
	}

	r.Handle("/contacts", Chain(handlers.CompressHandler(http.HandlerFunc(c.HandleList)), public("contacts.list")...)).
		Methods(http.MethodGet)
	r.Handle("/contacts/{id}", Chain(http.HandlerFunc(c.HandleGet), public("contacts.get")...)).
		Methods(http.MethodGet)
	r.Handle("/contacts", Chain(http.HandlerFunc(c.HandleCreate), guarded("contacts.create")...)).
		Methods(http.MethodPost)
	r.Handle("/contacts/{id}", Chain(http.HandlerFunc(c.HandleUpdate), guarded("contacts.update")...)).
		Methods(http.MethodPut)
	r.Handle("/contacts/{id}", Chain(http.HandlerFunc(c.HandleDelete), guarded("contacts.delete")...)).
		Methods(http.MethodDelete)

	r.Handle("/healthz", Chain(http.HandlerFunc(s.healthHandler.HandleHealth), MetricsMiddleware("healthz"))).
		Methods(http.MethodGet)
	r.Handle("/stats", Chain(http.HandlerFunc(s.statsHandler.HandleStats), MetricsMiddleware("stats"))).
		Methods(http.MethodGet)

	if s.docs != nil {
		s.docs(r)
	}
	return r
}

// Handler returns the router behind a panic recovery handler.
func (s *Server) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: s.log}),
		handlers.PrintRecoveryStack(false),
	)
	return recovery(s.Router())
}

type recoveryLogger struct {
	log logger.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.log.Error(context.Background(), "recovered from panic", logger.String("panic", fmt.Sprint(v...)))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
