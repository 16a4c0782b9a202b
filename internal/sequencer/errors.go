package sequencer

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
)

// Sentinel errors.
var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrMissingID        = errors.New("item id cannot be empty")
	ErrAddInFlight      = errors.New("an add is already in flight")
	ErrPurchaseInFlight = errors.New("a purchase of this item is already in flight")
)

// ValidationError is a local rejection. The store is never contacted.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrValidation) hold for any validation error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteWriteError is a failed append or delete.
type RemoteWriteError struct {
	Op         string
	Collection string
	Key        string
	Err        error
}

func (e *RemoteWriteError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("remote %s of %s on %s: %v", e.Op, e.Key, e.Collection, e.Err)
	}
	return fmt.Sprintf("remote %s on %s: %v", e.Op, e.Collection, e.Err)
}

func (e *RemoteWriteError) Unwrap() error {
	return e.Err
}

// SequencingFailure reports a purchase whose delete from to-buy succeeded but
// whose append to purchased failed. The item is in neither collection.
type SequencingFailure struct {
	Item model.GroceryItem
	Err  error
}

func (e *SequencingFailure) Error() string {
	return fmt.Sprintf("purchase of %q removed it from %s but did not record it in %s: %v",
		e.Item.Name, model.CollectionToBuy, model.CollectionPurchased, e.Err)
}

func (e *SequencingFailure) Unwrap() error {
	return e.Err
}
