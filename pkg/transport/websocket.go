package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultHandshakeTimeout bounds the websocket upgrade.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultWriteWait is how long a single frame write may take.
	DefaultWriteWait = 5 * time.Second

	// DefaultMaxMessageSize bounds inbound annotated frames.
	DefaultMaxMessageSize = 8 << 20

	closeWait = time.Second
)

// WebSocketDialer dials the annotation service's streaming endpoint.
type WebSocketDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	Logger           *slog.Logger
}

// NewWebSocketDialer returns a dialer for url with default timeouts.
func NewWebSocketDialer(url string, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketDialer{
		URL:              url,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteWait:        DefaultWriteWait,
		MaxMessageSize:   DefaultMaxMessageSize,
		Logger:           logger,
	}
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		dialErr := &DialError{URL: d.URL, Err: err}
		if resp != nil {
			dialErr.Status = resp.StatusCode
			resp.Body.Close()
		}
		return nil, dialErr
	}

	if d.MaxMessageSize > 0 {
		ws.SetReadLimit(d.MaxMessageSize)
	}

	writeWait := d.WriteWait
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}

	d.Logger.Debug("websocket connected", "url", d.URL)
	return &wsConn{
		ws:        ws,
		writeWait: writeWait,
		logger:    d.Logger,
		closed:    make(chan struct{}),
	}, nil
}

// wsConn sends and receives binary websocket messages.
type wsConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	logger    *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Send implements Conn.
func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}

	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Receive implements Conn. Text messages are ignored; the service only
// answers with images.
func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil, ErrClosed
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			c.logger.Debug("ignoring non-binary message", "type", msgType, "bytes", len(data))
			continue
		}
		return data, nil
	}
}

// Close implements Conn. It sends a close frame before closing the socket.
// WriteControl may run concurrently with a blocked Send.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))

		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
