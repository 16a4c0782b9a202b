//go:build functional

package functional

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
)

// TestFunctional_REST_001_ListEmptyCollection tests listing an empty collection.
// FT-REST-001: List items - empty collection (GET -> 200, empty array)
func TestFunctional_REST_001_ListEmptyCollection(t *testing.T) {
	LogTestStart(t, "FT-REST-001", "List items - empty collection")
	defer LogTestEnd(t, "FT-REST-001")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	for _, collection := range model.Collections {
		if items := ListItems(ctx, t, client, collection); len(items) != 0 {
			t.Errorf("Expected empty %s, got %d items", collection, len(items))
		}
	}
}

// TestFunctional_REST_002_AppendItem tests appending a valid item.
// FT-REST-002: Append item - valid (POST -> 201, item with generated ID)
func TestFunctional_REST_002_AppendItem(t *testing.T) {
	LogTestStart(t, "FT-REST-002", "Append item - valid")
	defer LogTestEnd(t, "FT-REST-002")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	// Act
	item := AppendItem(ctx, t, client, model.CollectionToBuy, "  Milk  ")

	// Assert
	if item.ID == "" {
		t.Error("Expected item to have an ID")
	}
	if item.Name != "Milk" {
		t.Errorf("Expected trimmed name %q, got %q", "Milk", item.Name)
	}

	items := ListItems(ctx, t, client, model.CollectionToBuy)
	if len(items) != 1 || items[0] != item {
		t.Errorf("Expected [%v], got %v", item, items)
	}
}

// TestFunctional_REST_003_AppendInvalid tests that invalid appends are rejected.
// FT-REST-003: Append item - invalid body or name (POST -> 400)
func TestFunctional_REST_003_AppendInvalid(t *testing.T) {
	LogTestStart(t, "FT-REST-003", "Append item - invalid")
	defer LogTestEnd(t, "FT-REST-003")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "blank name", body: model.AppendRequest{Name: "   "}},
		{name: "missing name", body: map[string]string{}},
		{name: "too long", body: model.AppendRequest{Name: strings.Repeat("a", model.MaxNameLength+1)}},
		{name: "invalid json", body: `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Post(ctx, ItemsPath(model.CollectionToBuy), tt.body, nil)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}

			AssertStatusCode(t, resp, http.StatusBadRequest)
			errResp, err := ParseErrorResponse(resp.Body)
			if err != nil {
				t.Fatalf("Failed to parse error response: %v", err)
			}
			if errResp.Code != http.StatusBadRequest || errResp.Message == "" {
				t.Errorf("Unexpected error response: %+v", errResp)
			}
		})
	}

	if items := ListItems(ctx, t, client, model.CollectionToBuy); len(items) != 0 {
		t.Errorf("Rejected appends should not be stored, got %v", items)
	}
}

// TestFunctional_REST_004_UnknownCollection tests requests to an unknown collection.
// FT-REST-004: Unknown collection (GET/POST/DELETE -> 404)
func TestFunctional_REST_004_UnknownCollection(t *testing.T) {
	LogTestStart(t, "FT-REST-004", "Unknown collection")
	defer LogTestEnd(t, "FT-REST-004")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	requests := []Request{
		{Method: http.MethodGet, Path: ItemsPath("groceries")},
		{Method: http.MethodPost, Path: ItemsPath("groceries"), Body: model.AppendRequest{Name: "Milk"}},
		{Method: http.MethodDelete, Path: ItemsPath("groceries") + "/k1"},
	}

	for _, req := range requests {
		resp, err := client.Do(ctx, req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		AssertStatusCode(t, resp, http.StatusNotFound)
	}
}

// TestFunctional_REST_005_DeleteItem tests deleting an item and a missing key.
// FT-REST-005: Delete item (DELETE -> 204, idempotent)
func TestFunctional_REST_005_DeleteItem(t *testing.T) {
	LogTestStart(t, "FT-REST-005", "Delete item")
	defer LogTestEnd(t, "FT-REST-005")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	item := AppendItem(ctx, t, client, model.CollectionPurchased, "Eggs")

	for i := 0; i < 2; i++ {
		resp, err := client.Delete(ctx, ItemsPath(model.CollectionPurchased)+"/"+item.ID, nil)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		AssertStatusCode(t, resp, http.StatusNoContent)
	}

	if items := ListItems(ctx, t, client, model.CollectionPurchased); len(items) != 0 {
		t.Errorf("Expected empty collection after delete, got %v", items)
	}
}

// TestFunctional_REST_006_InsertionOrder tests that listings keep insertion order.
// FT-REST-006: List keeps natural order
func TestFunctional_REST_006_InsertionOrder(t *testing.T) {
	LogTestStart(t, "FT-REST-006", "List keeps natural order")
	defer LogTestEnd(t, "FT-REST-006")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	names := []string{"Milk", "Eggs", "Bread", "Milk"}
	for _, name := range names {
		AppendItem(ctx, t, client, model.CollectionToBuy, name)
	}

	items := ListItems(ctx, t, client, model.CollectionToBuy)
	if len(items) != len(names) {
		t.Fatalf("Expected %d items, got %d", len(names), len(items))
	}
	seen := make(map[string]bool)
	for i, item := range items {
		if item.Name != names[i] {
			t.Errorf("items[%d] = %q, want %q", i, item.Name, names[i])
		}
		if seen[item.ID] {
			t.Errorf("Duplicate ID %s", item.ID)
		}
		seen[item.ID] = true
	}
}

// TestFunctional_REST_007_CollectionsAreIndependent tests that keys do not leak across collections.
// FT-REST-007: Collections are independent
func TestFunctional_REST_007_CollectionsAreIndependent(t *testing.T) {
	LogTestStart(t, "FT-REST-007", "Collections are independent")
	defer LogTestEnd(t, "FT-REST-007")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	toBuy := AppendItem(ctx, t, client, model.CollectionToBuy, "Milk")

	// Deleting the to-buy key from purchased is a no-op.
	resp, err := client.Delete(ctx, ItemsPath(model.CollectionPurchased)+"/"+toBuy.ID, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusNoContent)

	if items := ListItems(ctx, t, client, model.CollectionToBuy); len(items) != 1 {
		t.Errorf("Expected to-buy to keep its item, got %v", items)
	}
}

// TestFunctional_REST_008_ConcurrentAppends tests concurrent appends.
// FT-REST-008: Concurrent appends all land with unique IDs
func TestFunctional_REST_008_ConcurrentAppends(t *testing.T) {
	LogTestStart(t, "FT-REST-008", "Concurrent appends")
	defer LogTestEnd(t, "FT-REST-008")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Post(ctx, ItemsPath(model.CollectionToBuy), model.AppendRequest{Name: "Apples"}, nil)
			if err != nil {
				t.Errorf("Request failed: %v", err)
				return
			}
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("Expected 201, got %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	items := ListItems(ctx, t, client, model.CollectionToBuy)
	ids := make(map[string]bool)
	for _, item := range items {
		ids[item.ID] = true
	}
	if len(ids) != workers {
		t.Errorf("Expected %d unique items, got %d", workers, len(ids))
	}
}

// TestFunctional_REST_009_RequestID tests request ID propagation.
// FT-REST-009: X-Request-ID is echoed or generated
func TestFunctional_REST_009_RequestID(t *testing.T) {
	LogTestStart(t, "FT-REST-009", "Request ID")
	defer LogTestEnd(t, "FT-REST-009")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	resp, err := client.Get(ctx, ItemsPath(model.CollectionToBuy), map[string]string{"X-Request-ID": "op-123"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertHeader(t, resp, "X-Request-ID", "op-123")

	resp, err = client.Get(ctx, "/health", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.Headers.Get("X-Request-ID") == "" {
		t.Error("Expected a generated X-Request-ID")
	}
	AssertHeader(t, resp, "Content-Type", "application/json")
	if health := DecodeData[map[string]string](t, resp); health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health)
	}
}
