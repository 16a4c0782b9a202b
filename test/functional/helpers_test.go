//go:build functional

// Package functional exercises the store server and the grocery client
// against a real listening server.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/config"
	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/server"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Environment overrides for the suite.
const (
	EnvTestServerHost    = "TEST_SERVER_HOST"
	EnvTestMetricsEnable = "TEST_METRICS_ENABLED"
	EnvTestReadyTimeout  = "TEST_TIMEOUT"
)

// Suite timings.
const (
	DefaultReadyTimeout     = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestServer runs a store server on a free port. The store outlives
// Restart so tests can drop connections without losing data.
type TestServer struct {
	Server  *server.Server
	Store   *store.MemoryStore
	BaseURL string
	WSURL   string

	t       *testing.T
	cfg     *config.Config
	ready   time.Duration
	mu      sync.Mutex
	running bool
}

// NewTestServer prepares a server on a free port. Call Start before use.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	host := envOr(EnvTestServerHost, "localhost")
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		t.Fatalf("Failed to reserve a port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	cfg := config.Default()
	cfg.ServerPort = port
	cfg.ShutdownTimeout = DefaultShutdownTimeout
	cfg.MetricsEnabled, _ = strconv.ParseBool(os.Getenv(EnvTestMetricsEnable))

	ready, err := time.ParseDuration(envOr(EnvTestReadyTimeout, DefaultReadyTimeout.String()))
	if err != nil {
		ready = DefaultReadyTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	memStore := store.NewMemoryStore()
	return &TestServer{
		Server:  server.New(cfg, zap.NewNop(), memStore),
		Store:   memStore,
		BaseURL: "http://" + addr,
		WSURL:   "ws://" + addr,
		t:       t,
		cfg:     cfg,
		ready:   ready,
	}
}

// Start serves in the background and returns once /health answers.
func (ts *TestServer) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.running {
		return
	}

	srv := ts.Server
	go func() {
		if err := srv.Start(); err != nil {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	deadline := time.Now().Add(ts.ready)
	for {
		resp, err := http.Get(ts.BaseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			ts.t.Fatalf("Server not ready after %v", ts.ready)
		}
		time.Sleep(50 * time.Millisecond)
	}
	ts.running = true
}

func (ts *TestServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}
	ts.running = false
}

// Stop shuts the server down and closes its store.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.running {
		return
	}
	ts.shutdown()
	if err := ts.Store.Close(); err != nil {
		ts.t.Logf("Store close error: %v", err)
	}
}

// Restart swaps in a fresh server over the same store. Every open snapshot
// stream is dropped.
func (ts *TestServer) Restart() {
	ts.mu.Lock()
	ts.shutdown()
	ts.Server = server.New(ts.cfg, zap.NewNop(), ts.Store)
	ts.mu.Unlock()

	ts.Start()
}

// ItemsPath returns the REST path of a collection.
func ItemsPath(collection string) string {
	return "/api/v1/collections/" + collection + "/items"
}

// StreamPath returns the WebSocket path of a collection.
func StreamPath(collection string) string {
	return "/ws/collections/" + collection
}

// HTTPClient issues requests against one server and buffers the replies.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for baseURL.
func NewHTTPClient(_ *testing.T, baseURL string) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: DefaultRequestTimeout},
		baseURL: baseURL,
	}
}

// Request describes one call. A string or []byte Body is sent as is, any
// other value as JSON.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
}

// Response is a fully read reply.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do executes req.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	switch v := req.Body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(v)
	case []byte:
		body = bytes.NewReader(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Headers: headers})
}

// Post performs a POST request.
func (c *HTTPClient) Post(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Headers: headers})
}

// Delete performs a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Headers: headers})
}

// DecodeData unwraps a successful envelope and returns its data.
func DecodeData[T any](t *testing.T, resp *Response) T {
	t.Helper()

	var env model.APIResponse[T]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		t.Fatalf("Failed to parse response %s: %v", resp.Body, err)
	}
	if !env.Success {
		t.Fatalf("Expected success, got %s", resp.Body)
	}
	return env.Data
}

// ParseErrorResponse parses an error body.
func ParseErrorResponse(body []byte) (*model.ErrorResponse, error) {
	var resp model.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing error response: %w", err)
	}
	return &resp, nil
}

// AppendItem posts name to a collection and returns the created item.
func AppendItem(ctx context.Context, t *testing.T, client *HTTPClient, collection, name string) model.GroceryItem {
	t.Helper()

	resp, err := client.Post(ctx, ItemsPath(collection), model.AppendRequest{Name: name}, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusCreated)
	return DecodeData[model.GroceryItem](t, resp)
}

// ListItems fetches a collection in natural order.
func ListItems(ctx context.Context, t *testing.T, client *HTTPClient, collection string) []model.GroceryItem {
	t.Helper()

	resp, err := client.Get(ctx, ItemsPath(collection), nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusOK)
	return DecodeData[[]model.GroceryItem](t, resp)
}

// AssertStatusCode checks the status and shows the body on mismatch.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, resp.Body)
	}
}

// AssertHeader checks one response header.
func AssertHeader(t *testing.T, resp *Response, key, expected string) {
	t.Helper()
	if actual := resp.Headers.Get(key); actual != expected {
		t.Errorf("Expected header %s to be %q, got %q", key, expected, actual)
	}
}

// WaitFor polls cond until it holds or the timeout expires.
func WaitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}

// LogTestEnd logs the end of a test.
func LogTestEnd(t *testing.T, testID string) {
	t.Helper()
	t.Logf("Completed test %s", testID)
}
