// Package model contains domain models passed between layers.
package model

// ContactID identifies a contact. Values are assigned by the store.
type ContactID = int

// Contact is an address-book record. Everything except ContactID is opaque
// to the service and stored as received.
type Contact struct {
	ContactID ContactID `json:"contactId"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
}

// WithID returns a copy of c carrying id.
func (c Contact) WithID(id ContactID) Contact {
	c.ContactID = id
	return c
}

// SameFields reports whether c and o carry the same content, ignoring ids.
func (c Contact) SameFields(o Contact) bool {
	return c.WithID(0) == o.WithID(0)
}
