package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/grocery-sync/internal/model"
	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Stream timing. The server pings well within pongWait.
const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// subscription feeds snapshots from one WebSocket, reconnecting on drops.
type subscription struct {
	client     *Client
	collection string
	feed       *store.Feed
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func newSubscription(c *Client, collection string, conn *websocket.Conn) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		client:     c,
		collection: collection,
		feed:       store.NewFeed(),
		logger:     c.logger.With(zap.String("collection", collection)),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		conn:       conn,
	}
}

// Events returns the snapshot stream.
func (s *subscription) Events() <-chan store.Event {
	return s.feed.Events()
}

// Close stops reconnecting, closes the connection and waits for the reader.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
		}

		<-s.done
		s.feed.Shutdown()
	})
	return nil
}

func (s *subscription) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		err := s.readLoop(conn)
		_ = conn.Close()
		if s.ctx.Err() != nil {
			return
		}

		s.logger.Warn("snapshot stream dropped", zap.Error(err))
		s.feed.Publish(store.Event{
			Collection: s.collection,
			Err:        fmt.Errorf("%w: %v", ErrDisconnected, err),
		})

		if !s.reconnect() {
			return
		}
	}
}

// reconnect dials until it succeeds or the subscription is closed.
func (s *subscription) reconnect() bool {
	for failures := 0; ; failures++ {
		delay := calculateBackoff(failures, s.client.reconnectMin, s.client.reconnectMax)
		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		conn, err := s.client.dial(s.ctx, s.collection)
		if err != nil {
			remoteReconnectsTotal.WithLabelValues(s.collection, "error").Inc()
			s.logger.Debug("reconnect failed",
				zap.Int("attempt", failures+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			continue
		}

		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			_ = conn.Close()
			return false
		}
		s.conn = conn
		s.mu.Unlock()

		remoteReconnectsTotal.WithLabelValues(s.collection, "ok").Inc()
		s.logger.Info("snapshot stream reconnected", zap.Int("attempts", failures+1))
		return true
	}
}

// readLoop publishes every message of conn until the connection fails.
func (s *subscription) readLoop(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPingHandler(func(data string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}

		var msg model.SnapshotMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.publishMalformed(err)
			continue
		}
		s.publish(msg)
	}
}

func (s *subscription) publish(msg model.SnapshotMessage) {
	if msg.Collection != s.collection {
		s.publishMalformed(fmt.Errorf("snapshot for %q on %q stream", msg.Collection, s.collection))
		return
	}

	switch msg.Type {
	case model.WSMessageTypeSnapshot:
		s.feed.Publish(store.Event{
			Collection: s.collection,
			Items:      model.CloneItems(msg.Items),
		})
	case model.WSMessageTypeError:
		s.feed.Publish(store.Event{
			Collection: s.collection,
			Err:        fmt.Errorf("%w: %s", ErrRemote, msg.Error),
		})
	default:
		s.publishMalformed(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (s *subscription) publishMalformed(cause error) {
	s.logger.Warn("discarding malformed snapshot", zap.Error(cause))
	s.feed.Publish(store.Event{
		Collection: s.collection,
		Err:        fmt.Errorf("%w: %v", ErrMalformedSnapshot, cause),
	})
}
