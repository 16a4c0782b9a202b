// Package gate holds a purchase until the user explicitly confirms it.
package gate

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/observe"
)

// Gate errors.
var (
	ErrConfirmInFlight = errors.New("a confirmed purchase is in flight")
	ErrNothingPending  = errors.New("no purchase is awaiting confirmation")
)

// State is the confirmation state.
type State int

// Gate states.
const (
	StateIdle State = iota
	StateAwaiting
	StateConfirming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateConfirming:
		return "confirming"
	default:
		return "unknown"
	}
}

// Purchaser performs the purchase once confirmed.
type Purchaser interface {
	PurchaseItem(ctx context.Context, item model.GroceryItem) (model.GroceryItem, error)
}

// Gate is the Idle → Awaiting → Confirming state machine. Nothing reaches the
// purchaser until Confirm is called.
type Gate struct {
	purchaser Purchaser
	logger    *zap.Logger
	changes   observe.Signal

	mu      sync.Mutex
	state   State
	pending model.GroceryItem
}

// New creates an idle Gate.
func New(purchaser Purchaser, logger *zap.Logger) *Gate {
	return &Gate{
		purchaser: purchaser,
		logger:    logger,
	}
}

// Select asks for confirmation of item, replacing any earlier selection.
func (g *Gate) Select(item model.GroceryItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateConfirming {
		return ErrConfirmInFlight
	}

	g.state = StateAwaiting
	g.pending = item
	g.changes.Notify()

	g.logger.Debug("purchase awaiting confirmation",
		zap.String("id", item.ID),
		zap.String("name", item.Name),
	)
	return nil
}

// Cancel drops the pending item without contacting the store.
func (g *Gate) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateConfirming:
		return ErrConfirmInFlight
	case StateIdle:
		return nil
	}

	g.logger.Debug("purchase cancelled", zap.String("id", g.pending.ID))
	g.state = StateIdle
	g.pending = model.GroceryItem{}
	g.changes.Notify()
	return nil
}

// Confirm purchases the pending item. On failure the item stays pending so
// the caller can retry or cancel.
func (g *Gate) Confirm(ctx context.Context) (model.GroceryItem, error) {
	g.mu.Lock()
	switch g.state {
	case StateIdle:
		g.mu.Unlock()
		return model.GroceryItem{}, ErrNothingPending
	case StateConfirming:
		g.mu.Unlock()
		return model.GroceryItem{}, ErrConfirmInFlight
	}
	item := g.pending
	g.state = StateConfirming
	g.changes.Notify()
	g.mu.Unlock()

	purchased, err := g.purchaser.PurchaseItem(ctx, item)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.state = StateAwaiting
		g.changes.Notify()
		g.logger.Warn("purchase failed, still awaiting confirmation",
			zap.String("id", item.ID),
			zap.Error(err),
		)
		return model.GroceryItem{}, err
	}

	g.state = StateIdle
	g.pending = model.GroceryItem{}
	g.changes.Notify()
	return purchased, nil
}

// Pending returns the item awaiting confirmation, if any.
func (g *Gate) Pending() (model.GroceryItem, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateIdle {
		return model.GroceryItem{}, false
	}
	return g.pending, true
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Changes subscribes to state changes.
func (g *Gate) Changes() (<-chan struct{}, func()) {
	return g.changes.Subscribe()
}
