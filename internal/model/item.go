// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation errors for GroceryItem.
var (
	ErrEmptyName   = errors.New("name cannot be empty")
	ErrNameTooLong = errors.New("name cannot exceed 255 characters")
)

// Validation constants.
const (
	// MaxNameLength is counted in characters, not bytes.
	MaxNameLength = 255
)

// Collection names.
const (
	CollectionToBuy     = "to-buy"
	CollectionPurchased = "purchased"
)

// Collections lists every collection the store serves, in display order.
var Collections = []string{CollectionToBuy, CollectionPurchased}

// ValidCollection reports whether name is one of the known collections.
func ValidCollection(name string) bool {
	switch name {
	case CollectionToBuy, CollectionPurchased:
		return true
	default:
		return false
	}
}

// GroceryItem is an entry of a collection. The ID is generated by the store
// and is only meaningful inside the collection that issued it.
type GroceryItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NormalizeName trims raw and checks it is a usable item name.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrEmptyName
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}

	return name, nil
}

// CloneItems returns a copy of items. A nil or empty input yields an empty,
// non-nil slice.
func CloneItems(items []GroceryItem) []GroceryItem {
	dup := make([]GroceryItem, len(items))
	copy(dup, items)
	return dup
}

// EqualItems reports whether a and b hold the same entries in the same order.
func EqualItems(a, b []GroceryItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AppendRequest is the body of a POST to a collection.
type AppendRequest struct {
	Name string `json:"name"`
}

// SnapshotMessage is pushed over a collection's WebSocket. A snapshot message
// always carries the complete collection in natural (insertion) order.
type SnapshotMessage struct {
	Type       string        `json:"type"`
	Collection string        `json:"collection"`
	Items      []GroceryItem `json:"items"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeSnapshot = "snapshot"
	WSMessageTypeError    = "error"
)

// NewSnapshotMessage creates a snapshot message for a collection.
func NewSnapshotMessage(collection string, items []GroceryItem) SnapshotMessage {
	return SnapshotMessage{
		Type:       WSMessageTypeSnapshot,
		Collection: collection,
		Items:      CloneItems(items),
		Timestamp:  time.Now().UTC(),
	}
}

// NewErrorMessage creates an error message for a collection.
func NewErrorMessage(collection, errMsg string) SnapshotMessage {
	return SnapshotMessage{
		Type:       WSMessageTypeError,
		Collection: collection,
		Error:      errMsg,
		Timestamp:  time.Now().UTC(),
	}
}
