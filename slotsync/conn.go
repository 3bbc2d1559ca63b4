package slotsync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one push connection. ReadMessage is called from a single
// reader goroutine and WriteMessage from the connection loop; Close may
// be called concurrently with both.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// WebSocketDialer dials the portal's push endpoint with gorilla/websocket.
type WebSocketDialer struct {
	// ReadTimeout closes a connection that delivered nothing for this
	// long. The server answers every ping, so it should exceed the
	// heartbeat interval. Zero disables it.
	ReadTimeout time.Duration
}

func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	c, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{c: c, readTimeout: d.ReadTimeout}, nil
}

type wsConn struct {
	c           *websocket.Conn
	readTimeout time.Duration
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	if w.readTimeout > 0 {
		w.c.SetReadDeadline(time.Now().Add(w.readTimeout))
	}
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}
