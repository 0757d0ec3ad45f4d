package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-pitchside/internal/log"
)

// echoServer replies to every binary message with the same bytes reversed,
// after first sending a text message the client must skip.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			ws.WriteMessage(websocket.TextMessage, []byte(`{"note":"ignored"}`))

			reply := make([]byte, len(data))
			for i := range data {
				reply[len(data)-1-i] = data[i]
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, reply); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	dialer := NewWebSocketDialer(wsURL(server), log.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, []byte{3, 2, 1}) {
		t.Errorf("Receive = %v, want [3 2 1]", got)
	}
}

func TestWebSocketDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dialer := NewWebSocketDialer(wsURL(server), log.Discard())
	_, err := dialer.Dial(context.Background())
	if err == nil {
		t.Fatal("expected dial error")
	}

	var dialErr *DialError
	if !errors.As(err, &dialErr) {
		t.Fatalf("err = %T, want *DialError", err)
	}
	if dialErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", dialErr.Status)
	}
}

func TestWebSocketCloseUnblocksReceive(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn, err := NewWebSocketDialer(wsURL(server), log.Discard()).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Receive err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}

	if err := conn.Send(context.Background(), []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close err = %v, want ErrClosed", err)
	}
	// Idempotent.
	conn.Close()
}

func TestWebSocketReceiveContextCancel(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	conn, err := NewWebSocketDialer(wsURL(server), log.Discard()).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := conn.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive err = %v, want DeadlineExceeded", err)
	}
}

func TestDialerFunc(t *testing.T) {
	called := false
	d := DialerFunc(func(ctx context.Context) (Conn, error) {
		called = true
		return nil, ErrClosed
	})
	if _, err := d.Dial(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
	if !called {
		t.Error("func not called")
	}
}
