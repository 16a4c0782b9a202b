// Package store provides the ordered, push-notified collection store the
// grocery engine is built on, together with an in-memory implementation.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
)

// Store errors.
var (
	ErrInvalidCollection = errors.New("unknown collection")
	ErrInvalidKey        = errors.New("invalid item key")
	ErrEmptyValue        = errors.New("value cannot be empty")
	ErrClosed            = errors.New("store is closed")
)

// Event is one notification of a subscription. A successful event carries the
// complete collection in natural (insertion) order; an empty collection is
// delivered as an event with no items. A failed notification carries Err and
// no items.
type Event struct {
	Collection string
	Items      []model.GroceryItem
	Err        error
}

// Subscription is a cancellable stream of full-collection snapshots.
type Subscription interface {
	// Events returns the snapshot stream. The first event describes the state
	// at subscription time. The channel is closed once the subscription ends.
	Events() <-chan Event

	// Close deregisters the listener. It is safe to call more than once.
	Close() error
}

// OrderedStore defines the operations the engine requires of the remote
// collection store.
type OrderedStore interface {
	// Subscribe registers a listener for a collection.
	Subscribe(ctx context.Context, collection string) (Subscription, error)

	// Append adds value to a collection under a freshly generated key and
	// returns that key.
	Append(ctx context.Context, collection, value string) (string, error)

	// Delete removes key from a collection. Deleting a missing key succeeds.
	Delete(ctx context.Context, collection, key string) error
}
