package mirror

import (
	"errors"
	"strings"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
)

// Order is the display order applied to every snapshot. One order is used for
// all collections of a session.
type Order int

const (
	// OrderNewestFirst lists the most recently added entry first.
	OrderNewestFirst Order = iota
	// OrderOldestFirst keeps the store's natural insertion order.
	OrderOldestFirst
)

// Order names accepted by ParseOrder.
const (
	OrderNameNewestFirst = "newest-first"
	OrderNameOldestFirst = "oldest-first"
)

// ErrInvalidOrder is returned by ParseOrder for an unknown name.
var ErrInvalidOrder = errors.New("order must be one of: newest-first, oldest-first")

// ParseOrder converts a configuration value into an Order.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case OrderNameNewestFirst, "":
		return OrderNewestFirst, nil
	case OrderNameOldestFirst:
		return OrderOldestFirst, nil
	default:
		return OrderNewestFirst, ErrInvalidOrder
	}
}

// String returns the configuration name of the order.
func (o Order) String() string {
	if o == OrderOldestFirst {
		return OrderNameOldestFirst
	}
	return OrderNameNewestFirst
}

// Apply returns a new slice holding items (given in insertion order) in
// display order.
func (o Order) Apply(items []model.GroceryItem) []model.GroceryItem {
	out := model.CloneItems(items)
	if o == OrderNewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
