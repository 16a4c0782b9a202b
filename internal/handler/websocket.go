package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Snapshot stream timings and limits.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	closeGrace     = time.Second
)

var wsConnections = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "grocery_ws_connections",
		Help: "Open snapshot streams per collection.",
	},
	[]string{"collection"},
)

// WebSocketHandler pushes collection snapshots to WebSocket clients.
type WebSocketHandler struct {
	store    store.OrderedStore
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	streams map[*stream]struct{}
}

// NewWebSocketHandler creates a handler streaming collections of s.
func NewWebSocketHandler(s store.OrderedStore, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		store: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Cross-origin policy is enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		streams: make(map[*stream]struct{}),
	}
}

// RegisterRoutes registers the stream route with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/collections/{collection}", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the connection and streams snapshots of the
// requested collection: one right away, then one after every change.
//
//nolint:contextcheck // the stream outlives the request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	if !model.ValidCollection(collection) {
		status, message := storeErrorStatus(store.ErrInvalidCollection)
		writeError(w, h.logger, status, message)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", zap.String("collection", collection), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = store.WithOperationID(ctx, r.Header.Get("X-Request-ID"))
	st := &stream{
		conn:       conn,
		collection: collection,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger: h.logger.With(
			zap.String("collection", collection),
			zap.String("remote_addr", conn.RemoteAddr().String()),
		),
	}

	sub, err := h.store.Subscribe(ctx, collection)
	if err != nil {
		st.logger.Error("stream subscribe failed", zap.Error(err))
		_ = st.write(model.NewErrorMessage(collection, err.Error()))
		st.closeWith(websocket.CloseInternalServerErr, "subscription failed")
		cancel()
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	h.streams[st] = struct{}{}
	h.mu.Unlock()
	wsConnections.WithLabelValues(collection).Inc()
	st.logger.Info("stream opened")

	go st.readLoop()
	go func() {
		st.writeLoop(ctx, sub)
		h.release(st)
	}()
}

// release forgets a finished stream.
func (h *WebSocketHandler) release(st *stream) {
	h.mu.Lock()
	_, ok := h.streams[st]
	delete(h.streams, st)
	h.mu.Unlock()

	if ok {
		wsConnections.WithLabelValues(st.collection).Dec()
		st.logger.Info("stream closed")
	}
}

// ClientCount returns the number of open streams.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// CloseAllConnections sends every open stream a close frame and waits
// briefly for each to finish before dropping the connection.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	open := make([]*stream, 0, len(h.streams))
	for st := range h.streams {
		open = append(open, st)
	}
	h.mu.Unlock()

	for _, st := range open {
		st.cancel()
	}

	deadline := time.NewTimer(closeGrace)
	defer deadline.Stop()
	for _, st := range open {
		select {
		case <-st.done:
		case <-deadline.C:
		}
		_ = st.conn.Close()
		h.release(st)
	}
}

// stream is one client connection following one collection.
type stream struct {
	conn       *websocket.Conn
	collection string
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *zap.Logger
}

// readLoop drains client frames so pongs and close frames are processed.
// Clients never send data the server acts on.
func (st *stream) readLoop() {
	defer st.cancel()

	st.conn.SetReadLimit(maxMessageSize)
	_ = st.conn.SetReadDeadline(time.Now().Add(pongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := st.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				st.logger.Debug("stream read ended", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop forwards store events until the stream or the store ends.
func (st *stream) writeLoop(ctx context.Context, sub store.Subscription) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		if err := sub.Close(); err != nil {
			st.logger.Debug("closing subscription", zap.Error(err))
		}
		_ = st.conn.Close()
		close(st.done)
	}()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			st.closeWith(websocket.CloseNormalClosure, "stream closed")
			return
		case ev, ok := <-events:
			if !ok {
				st.closeWith(websocket.CloseGoingAway, "store closed")
				return
			}
			msg := model.NewSnapshotMessage(ev.Collection, ev.Items)
			if ev.Err != nil {
				msg = model.NewErrorMessage(ev.Collection, ev.Err.Error())
			}
			if err := st.write(msg); err != nil {
				st.logger.Debug("snapshot write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				st.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (st *stream) write(msg model.SnapshotMessage) error {
	if err := st.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return st.conn.WriteJSON(msg)
}

func (st *stream) closeWith(code int, reason string) {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	frame := websocket.FormatCloseMessage(code, reason)
	if err := st.conn.WriteMessage(websocket.CloseMessage, frame); err != nil {
		st.logger.Debug("close frame failed", zap.Error(err))
	}
}
