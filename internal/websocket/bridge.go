// Package websocket pushes server-rendered fragments to dashboards open in a
// browser. Each connection belongs to one dashboard mount.
package websocket

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/weatherdash/internal/metrics"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Client is one browser connection.
type Client struct {
	// MountID is the dashboard instance the connection serves.
	MountID string
	conn    *websocket.Conn
	send    chan []byte
}

// DirectMessage is a payload for the connections of one mount.
type DirectMessage struct {
	MountID string
	Payload []byte
}

// Bridge tracks browser connections and routes payloads to them. Run must be
// running for registration and delivery to make progress.
type Bridge struct {
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan *DirectMessage
	done       chan struct{}

	// AcceptOptions is passed to websocket.Accept.
	AcceptOptions *websocket.AcceptOptions

	mu sync.RWMutex
}

// NewBridge creates a bridge. Start it with Run.
func NewBridge() *Bridge {
	return &Bridge{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		direct:     make(chan *DirectMessage, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run routes registrations and messages until ctx ends, then drops every client.
func (b *Bridge) Run(ctx context.Context) {
	slog.Info("WebSocket bridge started")
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for id, clients := range b.clients {
				for _, client := range clients {
					close(client.send)
				}
				delete(b.clients, id)
			}
			b.mu.Unlock()
			slog.Info("WebSocket bridge stopped")
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client.MountID] = append(b.clients[client.MountID], client)
			b.mu.Unlock()
			metrics.BrowserClients.Inc()
			slog.Debug("Browser client registered", "mount", client.MountID)

		case client := <-b.unregister:
			b.mu.Lock()
			if clients, ok := b.clients[client.MountID]; ok {
				for i, c := range clients {
					if c == client {
						b.clients[client.MountID] = append(clients[:i], clients[i+1:]...)
						close(client.send)
						metrics.BrowserClients.Dec()
						break
					}
				}
				if len(b.clients[client.MountID]) == 0 {
					delete(b.clients, client.MountID)
				}
			}
			b.mu.Unlock()
			slog.Debug("Browser client unregistered", "mount", client.MountID)

		case payload := <-b.broadcast:
			b.mu.RLock()
			for _, clients := range b.clients {
				for _, client := range clients {
					client.enqueue(payload)
				}
			}
			b.mu.RUnlock()

		case msg := <-b.direct:
			b.mu.RLock()
			for _, client := range b.clients[msg.MountID] {
				client.enqueue(msg.Payload)
			}
			b.mu.RUnlock()
		}
	}
}

func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		slog.Warn("Browser send buffer full, dropping message", "mount", c.MountID)
	}
}

// Serve upgrades the request and blocks until the browser goes away or the
// bridge stops.
func (b *Bridge) Serve(c echo.Context, mountID string) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), b.AcceptOptions)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return err
	}

	client := &Client{
		MountID: mountID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}

	select {
	case b.register <- client:
	case <-b.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	go func() {
		client.writePump(ctx)
		cancel()
	}()
	client.readPump(ctx)

	select {
	case b.unregister <- client:
	case <-b.done:
	}
	conn.Close(websocket.StatusNormalClosure, "dashboard closed")
	return nil
}

// readPump discards browser messages; it exists to notice the close.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err == nil {
			continue
		}
		status := websocket.CloseStatus(err)
		switch {
		case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
			slog.Debug("Browser closed websocket", "mount", c.MountID)
		case ctx.Err() != nil || err == io.EOF:
		default:
			slog.Warn("WebSocket read error", "mount", c.MountID, "error", err)
		}
		return
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Warn("WebSocket write error", "mount", c.MountID, "error", err)
				return
			}
		}
	}
}

// Broadcast sends payload to every connected browser.
func (b *Bridge) Broadcast(payload []byte) {
	select {
	case b.broadcast <- payload:
	case <-b.done:
	}
}

// SendDirect sends payload to the browsers of one mount.
func (b *Bridge) SendDirect(mountID string, payload []byte) {
	select {
	case b.direct <- &DirectMessage{MountID: mountID, Payload: payload}:
	case <-b.done:
	}
}

// ClientCount is the number of connections of mountID, or of all mounts when
// mountID is empty.
func (b *Bridge) ClientCount(mountID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if mountID != "" {
		return len(b.clients[mountID])
	}
	n := 0
	for _, clients := range b.clients {
		n += len(clients)
	}
	return n
}
