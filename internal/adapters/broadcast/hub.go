// Package broadcast pushes stored shots to live WebSocket observers.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/types"
	"github.com/okian/swish/pkg/logger"
	"github.com/okian/swish/pkg/metrics"
)

const (
	defaultBuffer       = 16
	defaultWriteTimeout = 5 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = pongWait * 9 / 10
)

type observer struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (o *observer) close() {
	o.once.Do(func() { close(o.send) })
}

// Hub fans shot messages out to every connected observer.
type Hub struct {
	buffer       int
	writeTimeout time.Duration
	checkOrigin  func(origin string) bool
	upgrader     websocket.Upgrader
	logger       logger.Logger

	mu        sync.Mutex
	observers map[*observer]struct{}
	closed    bool
}

// NewHub creates an empty Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		buffer:       defaultBuffer,
		writeTimeout: defaultWriteTimeout,
		observers:    make(map[*observer]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("broadcast")
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if h.checkOrigin == nil {
				return true
			}
			return h.checkOrigin(r.Header.Get("Origin"))
		},
	}
	return h
}

// Publish sends one stored shot to every observer. Observers whose buffer is
// full are disconnected.
func (h *Hub) Publish(ctx context.Context, id int64, rec model.ShotRecord) error {
	payload, err := json.Marshal(types.FromRecord(id, rec))
	if err != nil {
		return fmt.Errorf("encode shot %d: %w: %w", id, ErrBroadcast, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	sent := 0
	for o := range h.observers {
		select {
		case o.send <- payload:
			sent++
		default:
			h.logger.Warn(ctx, "disconnecting slow observer", logger.String("remote", o.conn.RemoteAddr().String()))
			h.removeLocked(o)
		}
	}
	metrics.RecordBroadcastMessages(sent)
	return nil
}

// Observers returns the number of connected observers.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close disconnects every observer and rejects further publishes.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for o := range h.observers {
		h.removeLocked(o)
	}
	return nil
}

// ServeWS upgrades the request and keeps the observer registered until the
// connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}

	o := &observer{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.add(o) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeTimeout))
		_ = conn.Close()
		return
	}
	h.logger.Debug(ctx, "observer connected", logger.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(o)
	}()
	h.readPump(o)

	h.remove(o)
	<-done
	_ = conn.Close()
	h.logger.Debug(ctx, "observer disconnected", logger.String("remote", conn.RemoteAddr().String()))
}

func (h *Hub) add(o *observer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.observers[o] = struct{}{}
	metrics.UpdateObservers(len(h.observers))
	return true
}

func (h *Hub) remove(o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(o)
}

func (h *Hub) removeLocked(o *observer) {
	if _, ok := h.observers[o]; !ok {
		return
	}
	delete(h.observers, o)
	o.close()
	metrics.UpdateObservers(len(h.observers))
}

// readPump discards client frames and returns when the connection drops.
func (h *Hub) readPump(o *observer) {
	o.conn.SetReadLimit(512)
	_ = o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(o *observer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-o.send:
			_ = o.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = o.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				// Unblock readPump.
				_ = o.conn.Close()
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				metrics.RecordBroadcastError()
				_ = o.conn.Close()
				return
			}
		case <-ticker.C:
			_ = o.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = o.conn.Close()
				return
			}
		}
	}
}
