package repository

import "github.com/okian/contacts/internal/domain/model"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithSeed preloads contacts. Each one is assigned an id the same way Add
// would assign it; ids on the inputs are ignored.
func WithSeed(contacts ...model.Contact) Option {
	return func(s *MemoryStore) {
		s.seed = append(s.seed, contacts...)
	}
}

// WithFirstID sets the first id handed out. Values below 1 are ignored.
func WithFirstID(id model.ContactID) Option {
	return func(s *MemoryStore) {
		if id > 0 {
			s.nextID = id
		}
	}
}
