package wire

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/linguachat/lingua/internal/creds"
)

// ErrAuthRejected indicates the relay refused the handshake because of
// missing or invalid credentials. Not retried automatically.
var ErrAuthRejected = errors.New("relay rejected credentials")

// Conn is a single established relay connection carrying envelopes.
type Conn interface {
	ReadEnvelope(ctx context.Context) (*Envelope, error)
	WriteEnvelope(ctx context.Context, e *Envelope) error
	Close() error
}

// Dialer establishes relay connections. The connection manager owns the
// only Conn in the process; nothing else dials.
type Dialer interface {
	Dial(ctx context.Context, url string, p creds.Pair) (Conn, error)
}

// WebsocketDialer dials the relay over WebSocket with token auth headers.
type WebsocketDialer struct{}

// Dial opens a WebSocket connection to the relay. A 401 or 403 handshake
// response maps to ErrAuthRejected.
func (WebsocketDialer) Dial(ctx context.Context, url string, p creds.Pair) (Conn, error) {
	header := http.Header{}
	if p.PrimaryToken != "" {
		header.Set("Authorization", "Bearer "+p.PrimaryToken)
	}
	if p.SessionToken != "" {
		header.Set("X-Session-Token", p.SessionToken)
	}

	c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("dial relay: %w", ErrAuthRejected)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadEnvelope(ctx context.Context) (*Envelope, error) {
	var e Envelope
	if err := wsjson.Read(ctx, w.c, &e); err != nil {
		if websocket.CloseStatus(err) == websocket.StatusPolicyViolation {
			return nil, fmt.Errorf("read envelope: %w", ErrAuthRejected)
		}
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	return &e, nil
}

func (w *wsConn) WriteEnvelope(ctx context.Context, e *Envelope) error {
	if err := wsjson.Write(ctx, w.c, e); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "client teardown")
}
