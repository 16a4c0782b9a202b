// Package mirror keeps a local, observable copy of a remote collection.
//
// A Mirror subscribes to an OrderedStore and replaces its list wholesale with
// every snapshot it receives, so its contents are always a function of the
// latest snapshot alone. Failed notifications are logged and recorded but
// never clear the list; only an authoritative empty snapshot does.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/observe"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Mirror errors.
var (
	ErrAlreadyStarted = errors.New("mirror already started")
	ErrClosed         = errors.New("mirror is closed")
	ErrStreamEnded    = errors.New("snapshot stream ended")
)

// Prometheus metrics.
var (
	snapshotsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocery_mirror_snapshots_applied_total",
			Help: "Total number of snapshots applied to a local mirror",
		},
		[]string{"collection"},
	)

	subscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocery_mirror_subscription_errors_total",
			Help: "Total number of failed snapshot notifications",
		},
		[]string{"collection"},
	)
)

// SubscriptionError reports a failed snapshot delivery for a collection.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription to %s: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Mirror is the local view of one collection.
type Mirror struct {
	collection string
	order      Order
	logger     *zap.Logger
	changes    observe.Signal

	mu          sync.RWMutex
	items       []model.GroceryItem
	lastErr     error
	lastUpdated time.Time
	started     bool
	closed      bool
	sub         store.Subscription
	stop        chan struct{}
	done        chan struct{}
}

// New creates a Mirror for collection. It holds an empty list until Start.
func New(collection string, order Order, logger *zap.Logger) *Mirror {
	return &Mirror{
		collection: collection,
		order:      order,
		logger:     logger.With(zap.String("collection", collection)),
		items:      []model.GroceryItem{},
	}
}

// Start subscribes to the collection and applies snapshots until Close. The
// context bounds the subscribe call only.
func (m *Mirror) Start(ctx context.Context, st store.OrderedStore) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	sub, err := st.Subscribe(ctx, m.collection)
	if err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return fmt.Errorf("subscribing to %s: %w", m.collection, err)
	}

	m.mu.Lock()
	if m.closed {
		// Closed while subscribing: release the listener right away.
		m.mu.Unlock()
		if err := sub.Close(); err != nil {
			m.logger.Debug("error closing subscription", zap.Error(err))
		}
		return ErrClosed
	}
	stop, done := make(chan struct{}), make(chan struct{})
	m.sub = sub
	m.stop = stop
	m.done = done
	m.mu.Unlock()

	m.logger.Debug("mirror subscribed")

	go m.run(sub, stop, done)

	return nil
}

func (m *Mirror) run(sub store.Subscription, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	events := sub.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				m.streamEnded()
				return
			}
			m.apply(ev)
		}
	}
}

// apply folds one event into the mirror.
func (m *Mirror) apply(ev store.Event) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	if ev.Err != nil {
		m.lastErr = &SubscriptionError{Collection: m.collection, Err: ev.Err}
		subscriptionErrors.WithLabelValues(m.collection).Inc()
		m.changes.Notify()
		m.mu.Unlock()

		m.logger.Warn("snapshot delivery failed, keeping last known list", zap.Error(ev.Err))
		return
	}

	next := m.order.Apply(ev.Items)
	same := model.EqualItems(m.items, next)
	if !same {
		m.items = next
	}
	// The first snapshot always counts as a change so readers learn the
	// list is synced even when it is empty.
	changed := !same || m.lastErr != nil || m.lastUpdated.IsZero()
	m.lastErr = nil
	m.lastUpdated = time.Now()
	count := len(m.items)
	snapshotsApplied.WithLabelValues(m.collection).Inc()
	if changed {
		m.changes.Notify()
	}
	m.mu.Unlock()

	m.logger.Debug("snapshot applied", zap.Int("items", count), zap.Bool("changed", changed))
}

// streamEnded records a subscription the store ended on its own. The mirror
// keeps its last list but will see no further snapshots.
func (m *Mirror) streamEnded() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.lastErr = &SubscriptionError{Collection: m.collection, Err: ErrStreamEnded}
	subscriptionErrors.WithLabelValues(m.collection).Inc()
	m.changes.Notify()
	m.mu.Unlock()

	m.logger.Warn("snapshot stream ended by store, keeping last known list")
}

// Close releases the subscription and waits for pending notifications to
// drain. It is idempotent and safe to call before Start.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sub, stop, done := m.sub, m.stop, m.done
	m.sub = nil
	m.mu.Unlock()

	if sub == nil {
		return nil
	}

	close(stop)
	err := sub.Close()
	<-done

	m.logger.Debug("mirror unsubscribed")

	if err != nil {
		return fmt.Errorf("closing %s subscription: %w", m.collection, err)
	}
	return nil
}

// Collection returns the mirrored collection name.
func (m *Mirror) Collection() string {
	return m.collection
}

// Items returns a copy of the current list in display order.
func (m *Mirror) Items() []model.GroceryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.CloneItems(m.items)
}

// LastError returns the most recent delivery failure, or nil once a snapshot
// has been applied since.
func (m *Mirror) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// LastUpdated returns when the last snapshot was applied.
func (m *Mirror) LastUpdated() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdated
}

// Changes subscribes to change notifications. Call the returned function to
// stop receiving them.
func (m *Mirror) Changes() (<-chan struct{}, func()) {
	return m.changes.Subscribe()
}
