package posestream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-pitchside/pkg/transport"
)

// fakeConn is an in-memory connection. Sent payloads are recorded and, if
// echo is set, looped back to Receive.
type fakeConn struct {
	echo bool

	mu    sync.Mutex
	sent  [][]byte
	block chan struct{} // when non-nil, Send waits for it

	sending chan struct{} // signalled when a Send begins
	inbound chan []byte
	failed  chan error

	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		sending: make(chan struct{}, 16),
		inbound: make(chan []byte, 16),
		failed:  make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	select {
	case c.sending <- struct{}{}:
	default:
	}

	c.mu.Lock()
	block := c.block
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-c.closed:
			return transport.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	c.mu.Lock()
	c.sent = append(c.sent, payload)
	c.mu.Unlock()

	if c.echo {
		select {
		case c.inbound <- payload:
		default:
		}
	}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case p := <-c.inbound:
		return p, nil
	case err := <-c.failed:
		return nil, err
	case <-c.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out fakeConns and tracks how many are open at once.
type fakeDialer struct {
	err  error
	echo bool

	mu      sync.Mutex
	dials   int
	conns   []*fakeConn
	maxOpen int
}

func (d *fakeDialer) Dial(ctx context.Context) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}

	open := 1
	for _, c := range d.conns {
		if !c.isClosed() {
			open++
		}
	}
	d.maxOpen = max(d.maxOpen, open)

	c := newFakeConn()
	c.echo = d.echo
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) MaxOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

var errRefused = errors.New("connection refused")

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}
