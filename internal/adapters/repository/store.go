// Package repository defines the contact store interface and its in-memory
// implementation.
package repository

import (
	"context"

	"github.com/okian/contacts/internal/domain/model"
)

// ContactStore provides synchronized access to the canonical contact set.
// Implementations hand out copies; callers never see internal state.
type ContactStore interface {
	// GetAll returns a snapshot of every contact. Order is unspecified and
	// the result is never nil.
	GetAll(ctx context.Context) []model.Contact

	// Get returns the contact stored under id. A missing id is reported as
	// false, not as an error.
	Get(ctx context.Context, id model.ContactID) (model.Contact, bool)

	// Add stores c under a newly assigned id and returns the stored copy.
	// Any id carried by c is ignored.
	Add(ctx context.Context, c model.Contact) model.Contact

	// Update replaces the contact stored under c.ContactID. It is a no-op
	// returning false when no such contact exists.
	Update(ctx context.Context, c model.Contact) bool

	// Delete removes the contact stored under id. It returns false when there
	// was nothing to remove.
	Delete(ctx context.Context, id model.ContactID) bool

	// Count returns the number of stored contacts.
	Count(ctx context.Context) int
}
