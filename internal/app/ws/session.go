package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	// Send buffer size
	sendBufferSize = 64
)

// Session is one client's persistent connection. A write pump serializes all
// outbound frames; inbound frames are handed to the dispatcher, each in its
// own goroutine, so a slow request never stalls the read loop.
type Session struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(conn *websocket.Conn, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With(zap.String("sessionID", id)),
		closed: make(chan struct{}),
	}
}

// ID returns the session's connection id.
func (s *Session) ID() string {
	return s.id
}

// Emit queues a frame for delivery to this client, and only this client.
// A saturated send buffer closes the session: the client observes the
// connection loss and reconnects, instead of waiting on a reply that was
// silently dropped.
func (s *Session) Emit(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode outbound frame", zap.Error(err))
		return
	}
	select {
	case s.send <- payload:
	case <-s.closed:
		s.logger.Debug("Dropping frame for closed session")
	default:
		s.logger.Warn("Send buffer full, closing session")
		s.close()
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.conn.Close()
}

// run services the connection until it drops. Pending dispatches observe the
// connection loss through the returned context's cancellation.
func (s *Session) run(ctx context.Context, dispatch func(ctx context.Context, s *Session, raw []byte)) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writePump()
	s.readPump(ctx, dispatch)
}

func (s *Session) readPump(ctx context.Context, dispatch func(ctx context.Context, s *Session, raw []byte)) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		// Distinct named requests from one connection may be in flight
		// concurrently; each dispatch is its own unit of work.
		go dispatch(ctx, s, message)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("Failed to write frame", zap.Error(err))
				return
			}
		case <-s.closed:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
