// Package sequencer turns grocery intents into ordered store writes.
//
// Purchasing is two independent remote operations: delete from to-buy, then
// append to purchased. The append is only started after the delete has been
// acknowledged, so an interruption can lose an item but never duplicate it.
// There is no rollback; a failed append is reported as a SequencingFailure.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/observe"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// DefaultWriteTimeout bounds a single remote write so an unanswered request
// cannot leave the add control disabled forever.
const DefaultWriteTimeout = 10 * time.Second

// Intent names used in logs and metrics.
const (
	IntentAdd        = "add"
	IntentPurchase   = "purchase"
	IntentUnpurchase = "unpurchase"
)

// Intent outcomes used in metrics.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeBusy     = "busy"
	outcomeFailed   = "failed"
	outcomePartial  = "partial"
)

var intentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "grocery_intents_total",
		Help: "Total number of grocery intents by outcome",
	},
	[]string{"intent", "outcome"},
)

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithWriteTimeout sets the per-write timeout. A non-positive value disables
// it.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Sequencer) {
		s.writeTimeout = d
	}
}

// Sequencer owns write access to both collections.
type Sequencer struct {
	store        store.OrderedStore
	logger       *zap.Logger
	writeTimeout time.Duration
	changes      observe.Signal

	mu         sync.Mutex
	adding     bool
	purchasing map[string]struct{}
}

// New creates a Sequencer writing to st.
func New(st store.OrderedStore, logger *zap.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		store:        st,
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
		purchasing:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItem appends the trimmed text to to-buy. The item only shows up locally
// once the store pushes the next snapshot.
func (s *Sequencer) AddItem(ctx context.Context, raw string) (model.GroceryItem, error) {
	opID := uuid.New().String()
	log := s.logger.With(zap.String("intent", IntentAdd), zap.String("operation_id", opID))

	name, err := model.NormalizeName(raw)
	if err != nil {
		intentsTotal.WithLabelValues(IntentAdd, outcomeRejected).Inc()
		log.Debug("add rejected", zap.Error(err))
		return model.GroceryItem{}, &ValidationError{Err: err}
	}

	if !s.beginAdd() {
		intentsTotal.WithLabelValues(IntentAdd, outcomeBusy).Inc()
		log.Debug("add ignored, another add is in flight")
		return model.GroceryItem{}, ErrAddInFlight
	}
	defer s.endAdd()

	wctx, cancel := s.writeContext(ctx, opID)
	defer cancel()

	key, err := s.store.Append(wctx, model.CollectionToBuy, name)
	if err != nil {
		werr := &RemoteWriteError{Op: "append", Collection: model.CollectionToBuy, Err: err}
		intentsTotal.WithLabelValues(IntentAdd, outcomeFailed).Inc()
		log.Error("error adding grocery", zap.String("name", name), zap.Error(werr))
		return model.GroceryItem{}, werr
	}

	intentsTotal.WithLabelValues(IntentAdd, outcomeOK).Inc()
	log.Info("grocery added", zap.String("id", key), zap.String("name", name))

	return model.GroceryItem{ID: key, Name: name}, nil
}

// PurchaseItem moves item from to-buy to purchased: delete first, then
// append under a new key. The returned item carries the purchased key.
func (s *Sequencer) PurchaseItem(ctx context.Context, item model.GroceryItem) (model.GroceryItem, error) {
	opID := uuid.New().String()
	log := s.logger.With(
		zap.String("intent", IntentPurchase),
		zap.String("operation_id", opID),
		zap.String("id", item.ID),
	)

	if item.ID == "" {
		intentsTotal.WithLabelValues(IntentPurchase, outcomeRejected).Inc()
		return model.GroceryItem{}, &ValidationError{Err: ErrMissingID}
	}
	name, err := model.NormalizeName(item.Name)
	if err != nil {
		intentsTotal.WithLabelValues(IntentPurchase, outcomeRejected).Inc()
		return model.GroceryItem{}, &ValidationError{Err: err}
	}

	if !s.beginPurchase(item.ID) {
		intentsTotal.WithLabelValues(IntentPurchase, outcomeBusy).Inc()
		log.Debug("purchase ignored, already in flight")
		return model.GroceryItem{}, ErrPurchaseInFlight
	}
	defer s.endPurchase(item.ID)

	if err := s.remove(ctx, opID, model.CollectionToBuy, item.ID); err != nil {
		intentsTotal.WithLabelValues(IntentPurchase, outcomeFailed).Inc()
		log.Error("error moving grocery to purchased", zap.Error(err))
		return model.GroceryItem{}, err
	}

	wctx, cancel := s.writeContext(ctx, opID)
	defer cancel()

	key, err := s.store.Append(wctx, model.CollectionPurchased, name)
	if err != nil {
		failure := &SequencingFailure{
			Item: item,
			Err:  &RemoteWriteError{Op: "append", Collection: model.CollectionPurchased, Err: err},
		}
		intentsTotal.WithLabelValues(IntentPurchase, outcomePartial).Inc()
		log.Error("grocery removed from to-buy but not recorded as purchased", zap.Error(failure))
		return model.GroceryItem{}, failure
	}

	intentsTotal.WithLabelValues(IntentPurchase, outcomeOK).Inc()
	log.Info("grocery purchased", zap.String("purchased_id", key), zap.String("name", name))

	return model.GroceryItem{ID: key, Name: name}, nil
}

// UnpurchaseItem deletes id from purchased. It does not re-add anything to
// to-buy.
func (s *Sequencer) UnpurchaseItem(ctx context.Context, id string) error {
	opID := uuid.New().String()
	log := s.logger.With(
		zap.String("intent", IntentUnpurchase),
		zap.String("operation_id", opID),
		zap.String("id", id),
	)

	if id == "" {
		intentsTotal.WithLabelValues(IntentUnpurchase, outcomeRejected).Inc()
		return &ValidationError{Err: ErrMissingID}
	}

	if err := s.remove(ctx, opID, model.CollectionPurchased, id); err != nil {
		intentsTotal.WithLabelValues(IntentUnpurchase, outcomeFailed).Inc()
		log.Error("error removing from recently purchased", zap.Error(err))
		return err
	}

	intentsTotal.WithLabelValues(IntentUnpurchase, outcomeOK).Inc()
	log.Info("grocery removed from recently purchased")

	return nil
}

// IsAdding reports whether an add is waiting for the store.
func (s *Sequencer) IsAdding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adding
}

// IsPurchasing reports whether a purchase of id is waiting for the store.
func (s *Sequencer) IsPurchasing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.purchasing[id]
	return ok
}

// Changes subscribes to in-flight state changes.
func (s *Sequencer) Changes() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}

func (s *Sequencer) remove(ctx context.Context, opID, collection, key string) error {
	wctx, cancel := s.writeContext(ctx, opID)
	defer cancel()

	if err := s.store.Delete(wctx, collection, key); err != nil {
		return &RemoteWriteError{Op: "delete", Collection: collection, Key: key, Err: err}
	}
	return nil
}

func (s *Sequencer) writeContext(ctx context.Context, opID string) (context.Context, context.CancelFunc) {
	ctx = store.WithOperationID(ctx, opID)
	if s.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}

func (s *Sequencer) beginAdd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adding {
		return false
	}
	s.adding = true
	s.changes.Notify()
	return true
}

func (s *Sequencer) endAdd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adding = false
	s.changes.Notify()
}

func (s *Sequencer) beginPurchase(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.purchasing[id]; busy {
		return false
	}
	s.purchasing[id] = struct{}{}
	s.changes.Notify()
	return true
}

func (s *Sequencer) endPurchase(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.purchasing, id)
	s.changes.Notify()
}
