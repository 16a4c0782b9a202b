// Package storetest provides a scriptable OrderedStore for tests.
//
// The fake records every call in order, lets a test override or block writes,
// and can push arbitrary snapshots or failures to subscribers. Closing a fake
// subscription only marks it closed; its channel stays open so a test can fire
// a notification after teardown and check that nobody acts on it.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Operations recorded in Call.Op.
const (
	OpSubscribe = "subscribe"
	OpAppend    = "append"
	OpDelete    = "delete"
)

// Call is one recorded store operation. Arg is the value for appends and the
// key for deletes.
type Call struct {
	Op         string
	Collection string
	Arg        string
}

// Store is a fake store.OrderedStore. Set the hook fields before use.
type Store struct {
	// AppendFunc, when set, decides the outcome of Append. A nil error and
	// non-empty key inserts the value under that key.
	AppendFunc func(ctx context.Context, collection, value string) (string, error)

	// DeleteFunc, when set, decides the outcome of Delete.
	DeleteFunc func(ctx context.Context, collection, key string) error

	// SubscribeErr fails every Subscribe when set.
	SubscribeErr error

	// SubscribeFunc, when set, can fail Subscribe per collection.
	SubscribeFunc func(ctx context.Context, collection string) error

	mu    sync.Mutex
	calls []Call
	data  map[string][]model.GroceryItem
	subs  []*Subscription
	next  int
}

// New creates an empty fake store.
func New() *Store {
	return &Store{data: make(map[string][]model.GroceryItem)}
}

// Seed sets the contents of a collection without recording calls or
// notifying subscribers.
func (s *Store) Seed(collection string, items ...model.GroceryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[collection] = model.CloneItems(items)
}

// Subscribe records the call and delivers the current contents.
func (s *Store) Subscribe(ctx context.Context, collection string) (store.Subscription, error) {
	s.record(OpSubscribe, collection, "")

	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}
	if s.SubscribeFunc != nil {
		if err := s.SubscribeFunc(ctx, collection); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription{collection: collection, feed: store.NewFeed()}
	s.subs = append(s.subs, sub)
	sub.feed.Publish(store.Event{Collection: collection, Items: model.CloneItems(s.data[collection])})

	return sub, nil
}

// Append records the call and, on success, stores the value and notifies.
func (s *Store) Append(ctx context.Context, collection, value string) (string, error) {
	s.record(OpAppend, collection, value)

	var key string
	if s.AppendFunc != nil {
		k, err := s.AppendFunc(ctx, collection, value)
		if err != nil {
			return "", err
		}
		key = k
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		s.next++
		key = fmt.Sprintf("k%d", s.next)
	}
	s.data[collection] = append(s.data[collection], model.GroceryItem{ID: key, Name: value})
	s.publishLocked(collection, store.Event{Collection: collection, Items: model.CloneItems(s.data[collection])})

	return key, nil
}

// Delete records the call and, on success, removes the key and notifies.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	s.record(OpDelete, collection, key)

	if s.DeleteFunc != nil {
		if err := s.DeleteFunc(ctx, collection, key); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.data[collection]
	for i, item := range items {
		if item.ID == key {
			s.data[collection] = append(items[:i:i], items[i+1:]...)
			s.publishLocked(collection, store.Event{Collection: collection, Items: model.CloneItems(s.data[collection])})
			break
		}
	}

	return nil
}

// Fire pushes a snapshot to every subscription of collection, closed or not.
func (s *Store) Fire(collection string, items ...model.GroceryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(collection, store.Event{Collection: collection, Items: model.CloneItems(items)})
}

// FireError pushes a failed notification to every subscription of collection.
func (s *Store) FireError(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(collection, store.Event{Collection: collection, Err: err})
}

// Calls returns the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup := make([]Call, len(s.calls))
	copy(dup, s.calls)
	return dup
}

// WriteCalls returns the recorded appends and deletes in order.
func (s *Store) WriteCalls() []Call {
	var writes []Call
	for _, c := range s.Calls() {
		if c.Op == OpAppend || c.Op == OpDelete {
			writes = append(writes, c)
		}
	}
	return writes
}

// Items returns the current contents of a collection in insertion order.
func (s *Store) Items(collection string) []model.GroceryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneItems(s.data[collection])
}

// OpenSubscriptions counts subscriptions on collection that were not closed.
func (s *Store) OpenSubscriptions(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sub := range s.subs {
		if sub.collection == collection && !sub.Closed() {
			n++
		}
	}
	return n
}

func (s *Store) record(op, collection, arg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Collection: collection, Arg: arg})
}

func (s *Store) publishLocked(collection string, ev store.Event) {
	for _, sub := range s.subs {
		if sub.collection == collection {
			sub.feed.Publish(ev)
		}
	}
}

// Subscription is the fake's subscription handle.
type Subscription struct {
	collection string
	feed       *store.Feed

	mu     sync.Mutex
	closed bool
}

// Events returns the snapshot stream. It is never closed.
func (s *Subscription) Events() <-chan store.Event {
	return s.feed.Events()
}

// Close marks the subscription closed.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ store.OrderedStore = (*Store)(nil)
