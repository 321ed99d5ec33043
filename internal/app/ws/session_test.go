package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// upgradedConn returns a server-side connection with no pumps running, so
// tests control the send buffer directly.
func upgradedConn(t *testing.T) *websocket.Conn {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade: %v", err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the upgraded connection")
		return nil
	}
}

func TestEmitClosesSessionWhenSaturated(t *testing.T) {
	s := &Session{
		id:     "test",
		conn:   upgradedConn(t),
		send:   make(chan []byte, 1),
		logger: zap.NewNop(),
		closed: make(chan struct{}),
	}

	// No write pump is draining, so the second frame saturates the buffer
	s.Emit(Response{Name: "first", Handle: "h1", Success: true})
	s.Emit(Response{Name: "second", Handle: "h2", Success: true})

	select {
	case <-s.closed:
	default:
		t.Fatal("Expected a saturated session to be closed")
	}
}

func TestEmitAfterCloseIsSafe(t *testing.T) {
	s := &Session{
		id:     "test",
		conn:   upgradedConn(t),
		send:   make(chan []byte, sendBufferSize),
		logger: zap.NewNop(),
		closed: make(chan struct{}),
	}
	s.close()
	s.close()

	// Must neither panic nor block
	s.Emit(Response{Name: "late", Handle: "h1"})
}
