package chat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/retry"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

// ContactList is a user's personal contact set. Union-only, like group
// membership.
type ContactList struct {
	store  rtstore.Store
	logger zerolog.Logger
}

// NewContactList creates a contact list over the given store session.
func NewContactList(store rtstore.Store, logger zerolog.Logger) *ContactList {
	return &ContactList{store: store, logger: logger}
}

// Add records contactID in owner's contacts. Adding twice is harmless.
func (c *ContactList) Add(ctx context.Context, ownerID, contactID string) error {
	path := contactPath(ownerID, contactID)
	if err := retry.Do(ctx, func() error {
		return c.store.Set(ctx, path, true)
	}); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// Contacts returns the owner's contact ids in lexicographic order.
func (c *ContactList) Contacts(ctx context.Context, ownerID string) ([]string, error) {
	snap, err := c.store.Once(ctx, contactsPath(ownerID))
	if err != nil {
		return nil, err
	}
	return snap.Keys(), nil
}

// Watch observes the owner's contact set.
func (c *ContactList) Watch(ownerID string, fn func([]string)) (func(), error) {
	return c.store.Subscribe(contactsPath(ownerID), func(snap rtstore.Snapshot) {
		fn(snap.Keys())
	})
}
