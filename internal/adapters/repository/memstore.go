package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/contacts/internal/domain/model"
	"github.com/okian/contacts/pkg/metrics"
)

// Store operation labels used for metrics.
const (
	opGetAll = "get_all"
	opGet    = "get"
	opAdd    = "add"
	opUpdate = "update"
	opDelete = "delete"
)

// MemoryStore is a ContactStore backed by a map.
//
// Writers take the exclusive lock, readers share it. Ids grow monotonically
// and are never handed out twice, even after a delete.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[model.ContactID]model.Contact
	nextID model.ContactID

	seed []model.Contact
}

var _ ContactStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store and applies opts.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:   make(map[model.ContactID]model.Contact),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, c := range s.seed {
		c.ContactID = s.nextID
		s.byID[c.ContactID] = c
		s.nextID++
	}
	s.seed = nil

	metrics.UpdateContactsTotal(len(s.byID))
	return s
}

// GetAll implements ContactStore.GetAll.
func (s *MemoryStore) GetAll(_ context.Context) []model.Contact {
	defer observe(opGetAll, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Contact, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	return out
}

// Get implements ContactStore.Get.
func (s *MemoryStore) Get(_ context.Context, id model.ContactID) (model.Contact, bool) {
	defer observe(opGet, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	return c, ok
}

// Add implements ContactStore.Add.
func (s *MemoryStore) Add(_ context.Context, c model.Contact) model.Contact {
	defer observe(opAdd, time.Now())

	s.mu.Lock()
	c.ContactID = s.nextID
	s.nextID++
	s.byID[c.ContactID] = c
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateContactsTotal(n)
	return c
}

// Update implements ContactStore.Update. Unknown ids are left alone.
func (s *MemoryStore) Update(_ context.Context, c model.Contact) bool {
	defer observe(opUpdate, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.ContactID]; !ok {
		return false
	}
	s.byID[c.ContactID] = c
	return true
}

// Delete implements ContactStore.Delete.
func (s *MemoryStore) Delete(_ context.Context, id model.ContactID) bool {
	defer observe(opDelete, time.Now())

	s.mu.Lock()
	_, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
	}
	n := len(s.byID)
	s.mu.Unlock()

	if ok {
		metrics.UpdateContactsTotal(n)
	}
	return ok
}

// Count implements ContactStore.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreOperation(op, float64(time.Since(start).Microseconds())/1000)
}
