// Package remote implements store.OrderedStore against a store server over
// HTTP writes and WebSocket snapshot streams.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Default client settings.
const (
	DefaultReconnectMin = 500 * time.Millisecond
	DefaultReconnectMax = 30 * time.Second

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 4 << 10
)

const (
	opAppend = "append"
	opDelete = "delete"
	opList   = "list"
)

// Client talks to a store server.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	dialer       *websocket.Dialer
	logger       *zap.Logger
	reconnectMin time.Duration
	reconnectMax time.Duration
}

var _ store.OrderedStore = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for writes and listings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDialer sets the WebSocket dialer used for snapshot streams.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithReconnect sets the bounds of the reconnect backoff. Non-positive values
// keep the defaults.
func WithReconnect(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if minDelay > 0 {
			c.reconnectMin = minDelay
		}
		if maxDelay > 0 {
			c.reconnectMax = maxDelay
		}
	}
}

// NewClient creates a client for the store server at baseURL.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		dialer:       websocket.DefaultDialer,
		logger:       logger,
		reconnectMin: DefaultReconnectMin,
		reconnectMax: DefaultReconnectMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reconnectMin > c.reconnectMax {
		c.reconnectMax = c.reconnectMin
	}

	return c, nil
}

// Append adds value to a collection and returns the key the server chose.
func (c *Client) Append(ctx context.Context, collection, value string) (string, error) {
	if !model.ValidCollection(collection) {
		return "", store.ErrInvalidCollection
	}

	body, err := json.Marshal(model.AppendRequest{Name: value})
	if err != nil {
		return "", fmt.Errorf("encode append request: %w", err)
	}

	var created model.APIResponse[model.GroceryItem]
	err = c.do(ctx, opAppend, collection, http.MethodPost, c.itemsURL(collection), body, http.StatusCreated, &created)
	if err != nil {
		return "", err
	}
	if created.Data.ID == "" {
		return "", fmt.Errorf("append: server returned no item ID")
	}

	return created.Data.ID, nil
}

// Delete removes key from a collection.
func (c *Client) Delete(ctx context.Context, collection, key string) error {
	if !model.ValidCollection(collection) {
		return store.ErrInvalidCollection
	}
	if key == "" {
		return store.ErrInvalidKey
	}

	target := c.itemsURL(collection) + "/" + url.PathEscape(key)
	return c.do(ctx, opDelete, collection, http.MethodDelete, target, nil, http.StatusNoContent, nil)
}

// List fetches a collection in natural order.
func (c *Client) List(ctx context.Context, collection string) ([]model.GroceryItem, error) {
	if !model.ValidCollection(collection) {
		return nil, store.ErrInvalidCollection
	}

	var listed model.APIResponse[[]model.GroceryItem]
	if err := c.do(ctx, opList, collection, http.MethodGet, c.itemsURL(collection), nil, http.StatusOK, &listed); err != nil {
		return nil, err
	}

	return model.CloneItems(listed.Data), nil
}

// do sends one request and decodes the response into out when it is non-nil.
func (c *Client) do(
	ctx context.Context,
	op, collection, method, target string,
	body []byte,
	wantStatus int,
	out any,
) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := store.OperationID(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		remoteRequestsTotal.WithLabelValues(op, collection, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		remoteRequestsTotal.WithLabelValues(op, collection, "rejected").Inc()
		return c.statusError(op, resp)
	}

	remoteRequestsTotal.WithLabelValues(op, collection, "ok").Inc()
	c.logger.Debug("store request completed",
		zap.String("operation", op),
		zap.String("collection", collection),
		zap.String("request_id", store.OperationID(ctx)),
	)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	statusErr := &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        statusToStoreError(op, resp.StatusCode),
	}

	var body model.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
		statusErr.Message = body.Message
	}

	return statusErr
}

func (c *Client) itemsURL(collection string) string {
	return c.baseURL.String() + "/api/v1/collections/" + url.PathEscape(collection) + "/items"
}

func (c *Client) streamURL(collection string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/collections/" + collection
	return u.String()
}

// Subscribe opens a snapshot stream for a collection. The connection is
// established before Subscribe returns; later drops are reported as failed
// events and the stream reconnects with exponential backoff until Close.
func (c *Client) Subscribe(ctx context.Context, collection string) (store.Subscription, error) {
	if !model.ValidCollection(collection) {
		return nil, store.ErrInvalidCollection
	}

	conn, err := c.dial(ctx, collection)
	if err != nil {
		return nil, err
	}

	sub := newSubscription(c, collection, conn)
	go sub.run()

	return sub, nil
}

func (c *Client) dial(ctx context.Context, collection string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.streamURL(collection), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			if mapped := statusToStoreError("subscribe", resp.StatusCode); mapped != nil {
				return nil, &StatusError{Op: "subscribe", StatusCode: resp.StatusCode, Err: mapped}
			}
		}
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	return conn, nil
}
