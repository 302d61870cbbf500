package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// maxFrameSize bounds a single frame; latest_data snapshots can be large.
const maxFrameSize = 4 << 20

// Conn is an open push channel.
type Conn interface {
	// Read blocks for the next frame. Frames that cannot be handled come back
	// as ErrUnknownEvent or ErrMalformedFrame and the connection stays usable.
	Read(ctx context.Context) (Event, error)
	Close() error
}

// Dialer opens push channels.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// WebSocketDialer dials the backend namespace over a websocket.
type WebSocketDialer struct {
	URL        string
	HTTPClient *http.Client
}

// NewDialer returns a dialer for the namespace at url (ws:// or wss://).
func NewDialer(url string) *WebSocketDialer {
	return &WebSocketDialer{URL: url}
}

// Dial implements Dialer. A non-empty token is sent as a bearer header.
func (d *WebSocketDialer) Dial(ctx context.Context, token string) (Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) (Event, error) {
	_, msg, err := c.conn.Read(ctx)
	if err != nil {
		return Event{}, err
	}
	return ParseFrame(msg)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "dashboard unmounted")
}

// IsNormalClosure reports whether err is the peer closing the socket cleanly.
func IsNormalClosure(err error) bool {
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}

// Listen reads frames from conn and hands each decoded event to handle until
// the connection fails or ctx ends. Frames that cannot be handled are skipped.
func Listen(ctx context.Context, conn Conn, handle func(Event)) error {
	for {
		ev, err := conn.Read(ctx)
		switch {
		case err == nil:
			handle(ev)
		case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrMalformedFrame):
			slog.Debug("Skipping stream frame", "error", err)
		default:
			return err
		}
	}
}
