package hub

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/teslashibe/go-pitchside/internal/log"
)

func serveHub(t *testing.T, h *Hub, initial ...Message) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		NewClient(h, c, initial...).Run()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws"
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
}

func TestNew(t *testing.T) {
	h := New("test", nil)
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
}

func TestBroadcastBinaryReachesAllClients(t *testing.T) {
	h := New("frames", log.Discard())
	go h.Run()
	t.Cleanup(h.Stop)

	url := serveHub(t, h)
	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, h, 2)

	h.BroadcastBinary([]byte{0xff, 0xd8, 0xff})

	for i, conn := range []*gorilla.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		if mt != gorilla.BinaryMessage {
			t.Errorf("client %d got message type %d, want binary", i, mt)
		}
		if len(data) != 3 || data[0] != 0xff {
			t.Errorf("client %d got %v", i, data)
		}
	}
}

func TestBroadcastJSON(t *testing.T) {
	h := New("status", log.Discard())
	go h.Run()
	t.Cleanup(h.Stop)

	conn := dial(t, serveHub(t, h))
	waitClients(t, h, 1)

	if err := h.BroadcastJSON(map[string]string{"state": "streaming"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != gorilla.TextMessage {
		t.Errorf("message type %d, want text", mt)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["state"] != "streaming" {
		t.Errorf("state = %q", got["state"])
	}
}

func TestInitialMessageSentFirst(t *testing.T) {
	h := New("status", log.Discard())
	go h.Run()
	t.Cleanup(h.Stop)

	conn := dial(t, serveHub(t, h, NewJSONMessage([]byte(`{"hello":true}`))))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"hello":true}` {
		t.Errorf("first message = %s", data)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h := New("frames", log.Discard())
	go h.Run()
	t.Cleanup(h.Stop)

	conn := dial(t, serveHub(t, h))
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}

func TestStopClosesClients(t *testing.T) {
	h := New("frames", log.Discard())
	go h.Run()

	conn := dial(t, serveHub(t, h))
	waitClients(t, h, 1)

	h.Stop()
	h.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close after Stop")
	}

	// Broadcasting after Stop must not block.
	h.BroadcastBinary([]byte{1})
}
