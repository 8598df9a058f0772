package internal

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Conn wraps websocket.Conn with timeouts. Writes may be issued
// concurrently; Read must only be called from one goroutine.
type Conn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Dial opens a WebSocket to url. handshakeTimeout bounds the dial when
// positive.
func Dial(ctx context.Context, url string, handshakeTimeout, readTimeout, writeTimeout time.Duration, readLimit int64) (*Conn, error) {
	if handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()
	}
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if readLimit > 0 {
		ws.SetReadLimit(readLimit)
	}
	return NewConn(ws, readTimeout, writeTimeout), nil
}

func NewConn(ws *websocket.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// Read returns the payload of the next data message.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *Conn) Write(ctx context.Context, v any) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, c.ws, v)
}

func (c *Conn) Close(code int, reason string) error {
	return c.ws.Close(websocket.StatusCode(code), reason)
}

// CloseCode extracts the close status carried by a read error. Errors
// without a close frame count as abnormal closure (1006).
func CloseCode(err error) int {
	if err == nil {
		return int(websocket.StatusNormalClosure)
	}
	if code := websocket.CloseStatus(err); code != -1 {
		return int(code)
	}
	if errors.Is(err, context.Canceled) {
		return int(websocket.StatusNormalClosure)
	}
	return int(websocket.StatusAbnormalClosure)
}
