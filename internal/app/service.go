// Package service provides the contact service that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	repository "github.com/okian/contacts/internal/adapters/repository"
	"github.com/okian/contacts/internal/domain/model"
	"github.com/okian/contacts/pkg/logger"
	"github.com/okian/contacts/pkg/metrics"
)

// Service fronts the contact store with logging and counters.
type Service struct {
	mu sync.RWMutex

	store repository.ContactStore
	seed  []model.Contact

	// State
	started   bool
	startedAt time.Time

	created atomic.Int64
	updated atomic.Int64
	deleted atomic.Int64
	missed  atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore uses store instead of a fresh in-memory store.
func WithStore(store repository.ContactStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSeed preloads contacts into the default in-memory store. It has no
// effect when WithStore is also given.
func WithSeed(contacts ...model.Contact) Option {
	return func(s *Service) {
		s.seed = append(s.seed, contacts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. The store exists as soon as New returns.
func New(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithSeed(s.seed...))
	}
	s.seed = nil
	return s
}

// Start marks the service as running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("contacts")
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "contact service started", logger.Int("contacts", s.store.Count(ctx)))
	return nil
}

// Stop marks the service as stopped. Stored contacts are kept until the
// process exits.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "contact service stopped",
		logger.Int("contacts", s.store.Count(context.Background())),
	)
}

// GetAll returns every stored contact.
func (s *Service) GetAll(ctx context.Context) []model.Contact {
	return s.store.GetAll(ctx)
}

// Get returns the contact stored under id or repository.ErrNotFound.
func (s *Service) Get(ctx context.Context, id model.ContactID) (model.Contact, error) {
	c, ok := s.store.Get(ctx, id)
	if !ok {
		s.missed.Add(1)
		return model.Contact{}, fmt.Errorf("get contact %d: %w", id, repository.ErrNotFound)
	}
	return c, nil
}

// Add stores c under a new id and returns the stored copy.
func (s *Service) Add(ctx context.Context, c model.Contact) model.Contact {
	stored := s.store.Add(ctx, c)
	s.created.Add(1)
	s.log().Debug(ctx, "contact created", logger.Int("contactId", stored.ContactID))
	return stored
}

// Update replaces the contact stored under c.ContactID. An unknown id leaves
// the store untouched and returns repository.ErrNotFound.
func (s *Service) Update(ctx context.Context, c model.Contact) error {
	if !s.store.Update(ctx, c) {
		s.missed.Add(1)
		s.log().Debug(ctx, "update of unknown contact ignored", logger.Int("contactId", c.ContactID))
		return fmt.Errorf("update contact %d: %w", c.ContactID, repository.ErrNotFound)
	}
	s.updated.Add(1)
	s.log().Debug(ctx, "contact updated", logger.Int("contactId", c.ContactID))
	return nil
}

// Delete removes the contact stored under id. An unknown id returns
// repository.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id model.ContactID) error {
	if !s.store.Delete(ctx, id) {
		s.missed.Add(1)
		return fmt.Errorf("delete contact %d: %w", id, repository.ErrNotFound)
	}
	s.deleted.Add(1)
	s.log().Debug(ctx, "contact deleted", logger.Int("contactId", id))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.store.Count(context.Background())
	metrics.UpdateContactsTotal(count)

	stats := map[string]any{
		"started":  s.started,
		"contacts": count,
		"created":  s.created.Load(),
		"updated":  s.updated.Load(),
		"deleted":  s.deleted.Load(),
		"notFound": s.missed.Load(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	}
	return stats
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	l := s.logger
	s.mu.RUnlock()
	if l == nil {
		return logger.Get()
	}
	return l
}
