// Package handler serves the ordered store over HTTP and WebSocket.
package handler

import (
	"context"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Store is what the handlers need from the hosted store.
type Store interface {
	store.OrderedStore
	List(ctx context.Context, collection string) ([]model.GroceryItem, error)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

var _ Store = (*store.MemoryStore)(nil)
