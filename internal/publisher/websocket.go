package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/navid-fn/premiumradar/internal/models"
	"github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

// Broadcaster pushes every batch to connected WebSocket clients. A new
// client receives the last batch on connect.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	last     []byte
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

func NewBroadcaster(logger logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
	}
}

func (b *Broadcaster) Name() string { return "websocket" }

func (b *Broadcaster) Publish(ctx context.Context, records []models.Record) error {
	msg, err := json.Marshal(records)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = msg
	for c := range b.clients {
		if err := b.write(c, msg); err != nil {
			b.logger.WithError(err).Debug("Dropping websocket client")
			c.Close()
			delete(b.clients, c)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handler accepts WebSocket connections.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.WithError(err).Warn("Websocket upgrade failed")
			return
		}

		b.mu.Lock()
		if b.last != nil {
			if err := b.write(conn, b.last); err != nil {
				b.mu.Unlock()
				conn.Close()
				return
			}
		}
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		// Reads only detect the client going away.
		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.Close()
		delete(b.clients, c)
	}
	return nil
}

// Caller must hold b.mu.
func (b *Broadcaster) write(c *websocket.Conn, msg []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.WriteMessage(websocket.TextMessage, msg)
}
