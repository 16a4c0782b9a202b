package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "plain name",
			raw:  "Milk",
			want: "Milk",
		},
		{
			name: "surrounding whitespace is trimmed",
			raw:  "  Eggs\t\n",
			want: "Eggs",
		},
		{
			name: "inner whitespace is kept",
			raw:  " Peanut butter ",
			want: "Peanut butter",
		},
		{
			name: "max name length",
			raw:  strings.Repeat("a", MaxNameLength),
			want: strings.Repeat("a", MaxNameLength),
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: ErrEmptyName,
		},
		{
			name:    "whitespace only",
			raw:     "   ",
			wantErr: ErrEmptyName,
		},
		{
			name:    "name too long",
			raw:     strings.Repeat("a", MaxNameLength+1),
			wantErr: ErrNameTooLong,
		},
		{
			name: "multibyte characters counted once",
			raw:  strings.Repeat("é", MaxNameLength),
			want: strings.Repeat("é", MaxNameLength),
		},
		{
			name:    "multibyte name too long",
			raw:     strings.Repeat("é", MaxNameLength+1),
			wantErr: ErrNameTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			got, err := NormalizeName(tt.raw)

			// Assert
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NormalizeName() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidCollection(t *testing.T) {
	tests := []struct {
		collection string
		want       bool
	}{
		{CollectionToBuy, true},
		{CollectionPurchased, true},
		{"groceries", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			if got := ValidCollection(tt.collection); got != tt.want {
				t.Errorf("ValidCollection(%q) = %v, want %v", tt.collection, got, tt.want)
			}
		})
	}
}

func TestCloneItems(t *testing.T) {
	t.Run("nil input yields empty non-nil slice", func(t *testing.T) {
		got := CloneItems(nil)
		if got == nil {
			t.Fatal("CloneItems(nil) returned nil")
		}
		if len(got) != 0 {
			t.Errorf("len = %d, want 0", len(got))
		}
	})

	t.Run("copy is independent", func(t *testing.T) {
		src := []GroceryItem{{ID: "k1", Name: "Milk"}}
		dup := CloneItems(src)
		dup[0].Name = "Bread"
		if src[0].Name != "Milk" {
			t.Errorf("source mutated: %q", src[0].Name)
		}
	})
}

func TestEqualItems(t *testing.T) {
	a := []GroceryItem{{ID: "k1", Name: "Milk"}, {ID: "k2", Name: "Eggs"}}

	if !EqualItems(a, CloneItems(a)) {
		t.Error("EqualItems() = false for identical lists")
	}
	if EqualItems(a, []GroceryItem{a[1], a[0]}) {
		t.Error("EqualItems() = true for reordered lists")
	}
	if EqualItems(a, a[:1]) {
		t.Error("EqualItems() = true for different lengths")
	}
	if !EqualItems(nil, []GroceryItem{}) {
		t.Error("EqualItems() = false for nil and empty")
	}
}

func TestAPIResponse_JSONMarshal(t *testing.T) {
	// Arrange
	resp := NewSuccessResponse(GroceryItem{ID: "k1", Name: "Milk"})

	// Act
	data, err := json.Marshal(resp)

	// Assert
	if err != nil {
		t.Fatalf("json.Marshal() unexpected error: %v", err)
	}

	var result struct {
		Success bool        `json:"success"`
		Data    GroceryItem `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("json.Unmarshal() unexpected error: %v", err)
	}

	if !result.Success {
		t.Errorf("success = false, want true")
	}
	if result.Data.ID != "k1" || result.Data.Name != "Milk" {
		t.Errorf("data = %+v", result.Data)
	}
}

func TestNewSnapshotMessage(t *testing.T) {
	// Arrange
	items := []GroceryItem{{ID: "k1", Name: "Milk"}}

	// Act
	msg := NewSnapshotMessage(CollectionToBuy, items)
	items[0].Name = "changed"

	// Assert
	if msg.Type != WSMessageTypeSnapshot {
		t.Errorf("Type = %s, want %s", msg.Type, WSMessageTypeSnapshot)
	}
	if msg.Collection != CollectionToBuy {
		t.Errorf("Collection = %s, want %s", msg.Collection, CollectionToBuy)
	}
	if msg.Items[0].Name != "Milk" {
		t.Errorf("message shares the caller's slice")
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestSnapshotMessage_EmptyItemsEncodeAsArray(t *testing.T) {
	// Arrange
	msg := NewSnapshotMessage(CollectionPurchased, nil)

	// Act
	data, err := json.Marshal(msg)

	// Assert
	if err != nil {
		t.Fatalf("json.Marshal() unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"items":[]`) {
		t.Errorf("encoded message = %s, want an empty items array", data)
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(CollectionToBuy, "store closed")

	if msg.Type != WSMessageTypeError {
		t.Errorf("Type = %s, want %s", msg.Type, WSMessageTypeError)
	}
	if msg.Error != "store closed" {
		t.Errorf("Error = %s, want store closed", msg.Error)
	}
	if msg.Items != nil {
		t.Errorf("Items = %v, want nil", msg.Items)
	}
}
