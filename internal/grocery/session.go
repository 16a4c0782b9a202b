// Package grocery ties the mirrors, the sequencer and the confirmation gate
// into one session over a shared ordered store.
package grocery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/gate"
	"github.com/vyrodovalexey/grocery-sync/internal/mirror"
	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/observe"
	"github.com/vyrodovalexey/grocery-sync/internal/sequencer"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Session errors.
var (
	ErrNotMounted     = errors.New("session is not mounted")
	ErrAlreadyMounted = errors.New("session is already mounted")
)

// View is the list the user is looking at.
type View int

// Views.
const (
	ViewToBuy View = iota
	ViewPurchased
)

func (v View) String() string {
	if v == ViewPurchased {
		return "purchased"
	}
	return "to-buy"
}

// Options configures a Session.
type Options struct {
	// Order applies to both lists.
	Order mirror.Order

	// WriteTimeout bounds each remote write. Zero means
	// sequencer.DefaultWriteTimeout; negative disables the bound.
	WriteTimeout time.Duration
}

// Session is one user's view of the shared lists.
type Session struct {
	store  store.OrderedStore
	order  mirror.Order
	logger *zap.Logger
	seq    *sequencer.Sequencer
	gate   *gate.Gate

	changes observe.Signal

	// lifecycle serializes Mount and Unmount; mu guards the fields below.
	lifecycle sync.Mutex

	mu        sync.Mutex
	mounted   bool
	epoch     uint64
	toBuy     *mirror.Mirror
	purchased *mirror.Mirror
	stop      chan struct{}
	forwarded sync.WaitGroup
	draft     string
	view      View
}

// NewSession creates an unmounted session.
func NewSession(st store.OrderedStore, logger *zap.Logger, opts Options) *Session {
	timeout := opts.WriteTimeout
	switch {
	case timeout == 0:
		timeout = sequencer.DefaultWriteTimeout
	case timeout < 0:
		timeout = 0
	}

	seq := sequencer.New(st, logger, sequencer.WithWriteTimeout(timeout))

	return &Session{
		store:  st,
		order:  opts.Order,
		logger: logger,
		seq:    seq,
		gate:   gate.New(seq, logger),
	}
}

// Mount subscribes to both collections. If the second subscription fails
// the first is released before returning.
func (s *Session) Mount(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	mounted := s.mounted
	s.mu.Unlock()
	if mounted {
		return ErrAlreadyMounted
	}

	toBuy := mirror.New(model.CollectionToBuy, s.order, s.logger)
	if err := toBuy.Start(ctx, s.store); err != nil {
		return fmt.Errorf("mounting session: %w", err)
	}

	purchased := mirror.New(model.CollectionPurchased, s.order, s.logger)
	if err := purchased.Start(ctx, s.store); err != nil {
		if cerr := toBuy.Close(); cerr != nil {
			s.logger.Warn("error releasing to-buy subscription", zap.Error(cerr))
		}
		return fmt.Errorf("mounting session: %w", err)
	}

	// Forwarders subscribe before the notify below, so a snapshot applied
	// at any point is visible to whoever wakes up.
	stop := make(chan struct{})
	s.forward(stop, toBuy, purchased)

	s.mu.Lock()
	s.mounted = true
	s.toBuy = toBuy
	s.purchased = purchased
	s.stop = stop
	s.changes.Notify()
	s.mu.Unlock()

	s.logger.Info("session mounted", zap.String("order", s.order.String()))
	return nil
}

// Unmount releases both subscriptions. The lists keep their last contents
// and no longer change. It is idempotent.
func (s *Session) Unmount() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = false
	s.epoch++
	toBuy, purchased, stop := s.toBuy, s.purchased, s.stop
	s.stop = nil
	s.mu.Unlock()

	close(stop)
	s.forwarded.Wait()

	err := errors.Join(toBuy.Close(), purchased.Close())
	if err != nil {
		s.logger.Warn("error unmounting session", zap.Error(err))
	}

	s.changes.Notify()
	s.logger.Info("session unmounted")
	return err
}

// forward fans every component's change signal into the session's.
func (s *Session) forward(stop <-chan struct{}, toBuy, purchased *mirror.Mirror) {
	sources := []func() (<-chan struct{}, func()){
		toBuy.Changes,
		purchased.Changes,
		s.seq.Changes,
		s.gate.Changes,
	}

	for _, subscribe := range sources {
		ch, release := subscribe()
		s.forwarded.Add(1)
		go func() {
			defer s.forwarded.Done()
			defer release()
			for {
				select {
				case <-stop:
					return
				case <-ch:
					s.changes.Notify()
				}
			}
		}()
	}
}

// SetDraft replaces the text being typed.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == text {
		return
	}
	s.draft = text
	s.changes.Notify()
}

// Draft returns the text being typed.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SubmitDraft adds the draft to to-buy. On success the draft is cleared and
// the to-buy view focused; on failure the draft is kept. A result that
// arrives after Unmount leaves the session untouched.
func (s *Session) SubmitDraft(ctx context.Context) (model.GroceryItem, error) {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return model.GroceryItem{}, ErrNotMounted
	}
	draft, epoch := s.draft, s.epoch
	s.mu.Unlock()

	item, err := s.seq.AddItem(ctx, draft)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || !s.mounted {
		s.logger.Debug("add finished after unmount, ignoring result", zap.Error(err))
		return item, err
	}
	if err != nil {
		return item, err
	}

	if s.draft == draft {
		s.draft = ""
	}
	s.view = ViewToBuy
	s.changes.Notify()

	return item, nil
}

// View returns the focused list.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetView focuses a list.
func (s *Session) SetView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view == v {
		return
	}
	s.view = v
	s.changes.Notify()
}

// Select asks for confirmation before purchasing item.
func (s *Session) Select(item model.GroceryItem) error {
	return s.gate.Select(item)
}

// Cancel drops the pending purchase.
func (s *Session) Cancel() error {
	return s.gate.Cancel()
}

// Confirm purchases the pending item.
func (s *Session) Confirm(ctx context.Context) (model.GroceryItem, error) {
	if !s.isMounted() {
		return model.GroceryItem{}, ErrNotMounted
	}
	return s.gate.Confirm(ctx)
}

// Unpurchase removes id from the recently purchased list.
func (s *Session) Unpurchase(ctx context.Context, id string) error {
	if !s.isMounted() {
		return ErrNotMounted
	}
	return s.seq.UnpurchaseItem(ctx, id)
}

// Pending returns the item awaiting confirmation, if any.
func (s *Session) Pending() (model.GroceryItem, bool) {
	return s.gate.Pending()
}

// GateState returns the confirmation state.
func (s *Session) GateState() gate.State {
	return s.gate.State()
}

// IsAdding reports whether an add is waiting for the store.
func (s *Session) IsAdding() bool {
	return s.seq.IsAdding()
}

// ToBuy returns the to-buy list in display order.
func (s *Session) ToBuy() []model.GroceryItem {
	toBuy, _ := s.mirrors()
	return itemsOf(toBuy)
}

// Purchased returns the recently purchased list in display order.
func (s *Session) Purchased() []model.GroceryItem {
	_, purchased := s.mirrors()
	return itemsOf(purchased)
}

// SyncError returns the latest failed notification of either list, if the
// list has not recovered since.
func (s *Session) SyncError() error {
	toBuy, purchased := s.mirrors()
	var errs []error
	for _, m := range []*mirror.Mirror{toBuy, purchased} {
		if m == nil {
			continue
		}
		if err := m.LastError(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Synced reports whether both lists have applied a snapshot since Mount.
func (s *Session) Synced() bool {
	toBuy, purchased := s.mirrors()
	if toBuy == nil || purchased == nil {
		return false
	}
	return !toBuy.LastUpdated().IsZero() && !purchased.LastUpdated().IsZero()
}

// Mounted reports whether the session holds live subscriptions.
func (s *Session) Mounted() bool {
	return s.isMounted()
}

// Changes subscribes to any change in the session.
func (s *Session) Changes() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}

func (s *Session) isMounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *Session) mirrors() (*mirror.Mirror, *mirror.Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toBuy, s.purchased
}

func itemsOf(m *mirror.Mirror) []model.GroceryItem {
	if m == nil {
		return []model.GroceryItem{}
	}
	return m.Items()
}
