package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
)

// MemoryStore implements OrderedStore with in-memory collections. Keys are
// ULIDs drawn from a monotonic source, so key order matches insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
	entropy     io.Reader
	closed      bool
}

type collection struct {
	keys   []string
	values map[string]string
	subs   map[string]*memorySubscription
}

// NewMemoryStore creates a new MemoryStore serving every known collection.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]*collection, len(model.Collections)),
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
	for _, name := range model.Collections {
		s.collections[name] = &collection{
			values: make(map[string]string),
			subs:   make(map[string]*memorySubscription),
		}
	}
	return s
}

// Subscribe registers a listener and immediately delivers the current state.
func (s *MemoryStore) Subscribe(ctx context.Context, name string) (Subscription, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("subscribe: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return nil, ErrInvalidCollection
	}

	sub := &memorySubscription{
		id:         uuid.New().String(),
		collection: name,
		store:      s,
		feed:       NewFeed(),
	}
	c.subs[sub.id] = sub
	storeSubscribers.WithLabelValues(name).Inc()

	sub.feed.Publish(Event{Collection: name, Items: c.snapshot()})
	storeSnapshotsPublished.WithLabelValues(name).Inc()

	return sub, nil
}

// Append adds value under a new key and notifies subscribers.
func (s *MemoryStore) Append(ctx context.Context, name, value string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("append item: %w", ctx.Err())
	default:
	}

	if value == "" {
		return "", ErrEmptyValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return "", ErrInvalidCollection
	}

	id, err := ulid.New(ulid.Timestamp(time.Now()), s.entropy)
	if err != nil {
		return "", fmt.Errorf("append item: generating key: %w", err)
	}
	key := id.String()

	c.keys = append(c.keys, key)
	c.values[key] = value
	storeOperationsTotal.WithLabelValues("append", name).Inc()

	s.broadcast(name, c)

	return key, nil
}

// Delete removes key from the collection. A missing key is not an error and
// does not notify subscribers.
func (s *MemoryStore) Delete(ctx context.Context, name, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete item: %w", ctx.Err())
	default:
	}

	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	c, ok := s.collections[name]
	if !ok {
		return ErrInvalidCollection
	}

	storeOperationsTotal.WithLabelValues("delete", name).Inc()

	if _, exists := c.values[key]; !exists {
		return nil
	}

	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}

	s.broadcast(name, c)

	return nil
}

// List returns the collection in natural order.
func (s *MemoryStore) List(ctx context.Context, name string) ([]model.GroceryItem, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list items: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, ErrInvalidCollection
	}

	return c.snapshot(), nil
}

// Subscribers returns the number of live subscriptions on a collection.
func (s *MemoryStore) Subscribers(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[name]; ok {
		return len(c.subs)
	}
	return 0
}

// Close ends every subscription. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for name, c := range s.collections {
		for id, sub := range c.subs {
			sub.feed.Shutdown()
			delete(c.subs, id)
			storeSubscribers.WithLabelValues(name).Dec()
		}
	}

	return nil
}

// broadcast pushes the full collection to every subscriber. Callers hold s.mu.
func (s *MemoryStore) broadcast(name string, c *collection) {
	if len(c.subs) == 0 {
		return
	}

	items := c.snapshot()
	for _, sub := range c.subs {
		// Each subscriber gets its own slice so readers cannot alias each other.
		sub.feed.Publish(Event{Collection: name, Items: model.CloneItems(items)})
		storeSnapshotsPublished.WithLabelValues(name).Inc()
	}
}

func (s *MemoryStore) unsubscribe(sub *memorySubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[sub.collection]
	if !ok {
		return
	}
	if _, exists := c.subs[sub.id]; exists {
		delete(c.subs, sub.id)
		storeSubscribers.WithLabelValues(sub.collection).Dec()
	}
}

func (c *collection) snapshot() []model.GroceryItem {
	items := make([]model.GroceryItem, 0, len(c.keys))
	for _, key := range c.keys {
		items = append(items, model.GroceryItem{ID: key, Name: c.values[key]})
	}
	return items
}

type memorySubscription struct {
	id         string
	collection string
	store      *MemoryStore
	feed       *Feed
	once       sync.Once
}

func (m *memorySubscription) Events() <-chan Event {
	return m.feed.Events()
}

func (m *memorySubscription) Close() error {
	m.once.Do(func() {
		m.store.unsubscribe(m)
		m.feed.Shutdown()
	})
	return nil
}

var _ OrderedStore = (*MemoryStore)(nil)
