package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pinpoint/internal/app/domain/account"
	"pinpoint/internal/app/domain/marker"
	"pinpoint/internal/pkg/config"
)

const (
	testLat = 30.28265
	testLon = -97.73675
)

// responseFrame mirrors Response with a raw message for per-test decoding.
type responseFrame struct {
	Name    string          `json:"name"`
	Handle  string          `json:"handle"`
	Success bool            `json:"success"`
	Message json.RawMessage `json:"message"`
}

type testBackend struct {
	server    *httptest.Server
	accountID string
	token     string
}

// setupTestServer wires memory-backed services behind a real WebSocket
// endpoint and seeds one account (password "hunter22").
func setupTestServer(t *testing.T) *testBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	accounts := account.NewService(account.NewMemoryRepository(), logger)
	seeded, err := accounts.CreateAccount(context.Background(), "alice@example.com", "Alice", "hunter22")
	if err != nil {
		t.Fatalf("Failed to seed account: %v", err)
	}
	markers := marker.NewService(marker.NewMemoryRepository(), accounts, config.MarkersConfig{
		TTL:             24 * time.Hour,
		RadiusKm:        1.5,
		PointsPerMarker: 5,
		PointsPerLike:   1,
	}, logger)

	dispatcher := NewDispatcher(accounts, markers, logger)
	gateway := NewGateway(dispatcher, logger)

	router := gin.New()
	router.GET("/ws", gateway.HandleWebSocket)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testBackend{
		server:    server,
		accountID: seeded.ID,
		token:     seeded.Token,
	}
}

func dialWS(t *testing.T, b *testBackend) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + b.server.URL[4:] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendRequest(t *testing.T, conn *websocket.Conn, name, handle string, id, token any, message any) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{
		"name":    name,
		"handle":  handle,
		"id":      id,
		"token":   token,
		"message": message,
	})
	if err != nil {
		t.Fatalf("Failed to send %s request: %v", name, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) responseFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame responseFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read response frame: %v", err)
	}
	return frame
}

// decodeRecordsFrame unpacks the JSON-encoded string payload that marker
// listing operations respond with.
func decodeRecordsFrame(t *testing.T, frame responseFrame) []marker.Record {
	t.Helper()
	var encoded string
	if err := json.Unmarshal(frame.Message, &encoded); err != nil {
		t.Fatalf("Expected a JSON-encoded string message, got %s: %v", frame.Message, err)
	}
	var records []marker.Record
	if err := json.Unmarshal([]byte(encoded), &records); err != nil {
		t.Fatalf("Failed to decode marker records from %q: %v", encoded, err)
	}
	return records
}

func TestWebSocketConnection(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "receiveMarkers", "h1", "-1", "-1",
		map[string]float64{"longitude": testLon, "latitude": testLat})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("Expected success, got failure: %s", frame.Message)
	}
	if frame.Handle != "h1" {
		t.Errorf("Expected handle h1 echoed back, got %q", frame.Handle)
	}
	if frame.Name != "receiveMarkers" {
		t.Errorf("Expected name receiveMarkers, got %q", frame.Name)
	}
	if records := decodeRecordsFrame(t, frame); len(records) != 0 {
		t.Errorf("Expected no markers, got %d", len(records))
	}
}

func TestGuestSentinelAsNumber(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	// Some clients send the guest sentinel as the JSON number -1
	sendRequest(t, conn, "receiveMarkers", "h1", -1, -1,
		map[string]float64{"longitude": testLon, "latitude": testLat})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("Expected guest number credentials to validate, got: %s", frame.Message)
	}
}

func TestMissingCredentialsRejected(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	// No id/token fields at all: not the guest sentinel, so not authorized
	err := conn.WriteJSON(map[string]any{
		"name":    "receiveMarkers",
		"handle":  "h1",
		"message": map[string]float64{"longitude": testLon, "latitude": testLat},
	})
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Success {
		t.Fatal("Expected a credential-less request to be rejected")
	}
	var msg string
	if err := json.Unmarshal(frame.Message, &msg); err != nil {
		t.Fatalf("Expected a string message, got %s: %v", frame.Message, err)
	}
	if msg != "Your account credentials are invalid." {
		t.Errorf("Unexpected failure message: %q", msg)
	}
}

func TestCreateAndReceiveMarkers(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "createMarker", "h-create", b.accountID, b.token, map[string]any{
		"longitude":   testLon,
		"latitude":    testLat,
		"category":    "Food",
		"title":       "Free tacos",
		"description": "While they last",
	})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("createMarker failed: %s", frame.Message)
	}
	var created marker.Record
	if err := json.Unmarshal(frame.Message, &created); err != nil {
		t.Fatalf("Failed to decode created marker: %v", err)
	}
	if created.Author != "Alice" {
		t.Errorf("Expected author Alice, got %q", created.Author)
	}
	if created.Likes != "[]" {
		t.Errorf("Expected empty likes array string, got %q", created.Likes)
	}

	sendRequest(t, conn, "receiveMarkers", "h-query", "-1", "-1",
		map[string]float64{"longitude": testLon, "latitude": testLat})
	frame = readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("receiveMarkers failed: %s", frame.Message)
	}
	records := decodeRecordsFrame(t, frame)
	if len(records) != 1 {
		t.Fatalf("Expected 1 marker, got %d", len(records))
	}
	if records[0].ID != created.ID {
		t.Errorf("Expected marker %s, got %s", created.ID, records[0].ID)
	}
	if records[0].Category != "Food" {
		t.Errorf("Expected category Food, got %q", records[0].Category)
	}
}

func TestLikeUnlikeFlow(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "createMarker", "h1", "-1", "-1", map[string]any{
		"longitude": testLon, "latitude": testLat, "category": "Party", "title": "Rooftop",
	})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("createMarker failed: %s", frame.Message)
	}
	var created marker.Record
	if err := json.Unmarshal(frame.Message, &created); err != nil {
		t.Fatalf("Failed to decode created marker: %v", err)
	}

	sendRequest(t, conn, "likeMarker", "h2", b.accountID, b.token,
		map[string]string{"marker_id": created.ID})
	frame = readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("likeMarker failed: %s", frame.Message)
	}
	var state marker.LikeState
	if err := json.Unmarshal(frame.Message, &state); err != nil {
		t.Fatalf("Failed to decode like state: %v", err)
	}
	if state.LikeCount != 1 || !state.HasLiked {
		t.Errorf("Expected like_count 1 and has_liked, got %+v", state)
	}

	sendRequest(t, conn, "unlikeMarker", "h3", b.accountID, b.token,
		map[string]string{"marker_id": created.ID})
	frame = readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("unlikeMarker failed: %s", frame.Message)
	}
	if err := json.Unmarshal(frame.Message, &state); err != nil {
		t.Fatalf("Failed to decode like state: %v", err)
	}
	if state.LikeCount != 0 || state.HasLiked {
		t.Errorf("Expected like_count 0 after unlike, got %+v", state)
	}
}

func TestOwnMarkersAndRemove(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "createMarker", "h1", b.accountID, b.token, map[string]any{
		"longitude": testLon, "latitude": testLat, "category": "School", "title": "Study group",
	})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("createMarker failed: %s", frame.Message)
	}
	var created marker.Record
	if err := json.Unmarshal(frame.Message, &created); err != nil {
		t.Fatalf("Failed to decode created marker: %v", err)
	}

	sendRequest(t, conn, "receiveAccountMarkers", "h2", b.accountID, b.token, map[string]any{})
	frame = readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("receiveAccountMarkers failed: %s", frame.Message)
	}
	if records := decodeRecordsFrame(t, frame); len(records) != 1 {
		t.Fatalf("Expected 1 own marker, got %d", len(records))
	}

	sendRequest(t, conn, "removeMarker", "h3", b.accountID, b.token,
		map[string]string{"marker_id": created.ID})
	frame = readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("removeMarker failed: %s", frame.Message)
	}

	sendRequest(t, conn, "receiveAccountMarkers", "h4", b.accountID, b.token, map[string]any{})
	frame = readFrame(t, conn)
	if records := decodeRecordsFrame(t, frame); len(records) != 0 {
		t.Errorf("Expected no own markers after removal, got %d", len(records))
	}
}

func TestOwnMarkersRejectedForGuests(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "receiveAccountMarkers", "h1", "-1", "-1", map[string]any{})
	frame := readFrame(t, conn)
	if frame.Success {
		t.Fatal("Expected guest receiveAccountMarkers to fail")
	}
}

func TestRemoveMarkerAuthorOnly(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "createMarker", "h1", b.accountID, b.token, map[string]any{
		"longitude": testLon, "latitude": testLat, "category": "Other", "title": "Mine",
	})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("createMarker failed: %s", frame.Message)
	}
	var created marker.Record
	if err := json.Unmarshal(frame.Message, &created); err != nil {
		t.Fatalf("Failed to decode created marker: %v", err)
	}

	// A guest is not the author
	sendRequest(t, conn, "removeMarker", "h2", "-1", "-1",
		map[string]string{"marker_id": created.ID})
	frame = readFrame(t, conn)
	if frame.Success {
		t.Fatal("Expected non-author removeMarker to fail")
	}
}

func TestLoginSuccess(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "loginAccount", "h1", "", "",
		map[string]string{"email": "alice@example.com", "password": "hunter22"})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("loginAccount failed: %s", frame.Message)
	}
	var payload struct {
		ID    string `json:"id"`
		Token string `json:"token"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(frame.Message, &payload); err != nil {
		t.Fatalf("Failed to decode login payload: %v", err)
	}
	if payload.ID != b.accountID || payload.Name != "Alice" || payload.Token == "" {
		t.Errorf("Unexpected login payload: %+v", payload)
	}

	// The freshly issued token validates on subsequent requests
	sendRequest(t, conn, "receiveAccountMarkers", "h2", payload.ID, payload.Token, map[string]any{})
	frame = readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("Issued token was rejected: %s", frame.Message)
	}
}

func TestLoginFailureFlagsBothFields(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "loginAccount", "h1", "", "",
		map[string]string{"email": "alice@example.com", "password": "wrong"})
	frame := readFrame(t, conn)
	if frame.Success {
		t.Fatal("Expected login with wrong password to fail")
	}
	var fields map[string]string
	if err := json.Unmarshal(frame.Message, &fields); err != nil {
		t.Fatalf("Expected a field map message, got %s: %v", frame.Message, err)
	}
	const want = "Incorrect email or password."
	if fields["email"] != want || fields["password"] != want {
		t.Errorf("Expected both fields flagged with %q, got %v", want, fields)
	}
}

func TestInvalidCredentialsRejected(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "receiveMarkers", "h1", "bogus-id", "bogus-token",
		map[string]float64{"longitude": testLon, "latitude": testLat})
	frame := readFrame(t, conn)
	if frame.Success {
		t.Fatal("Expected bogus credentials to be rejected")
	}
	var msg string
	if err := json.Unmarshal(frame.Message, &msg); err != nil {
		t.Fatalf("Expected a string message, got %s: %v", frame.Message, err)
	}
	if msg != "Your account credentials are invalid." {
		t.Errorf("Unexpected failure message: %q", msg)
	}
}

func TestUnknownOperationGetsNoResponse(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "fetchTheMoon", "h1", "-1", "-1", map[string]any{})

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("Expected no frame for an unknown operation")
	}
	// A read timeout means no frame arrived, which is what we want
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Expected a read timeout, got: %v", err)
	}
}

func TestDispatcherKeepsServingAfterFailure(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	sendRequest(t, conn, "likeMarker", "h1", "-1", "-1",
		map[string]string{"marker_id": "no-such-marker"})
	frame := readFrame(t, conn)
	if frame.Success {
		t.Fatal("Expected liking a missing marker to fail")
	}

	sendRequest(t, conn, "receiveMarkers", "h2", "-1", "-1",
		map[string]float64{"longitude": testLon, "latitude": testLat})
	frame = readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("Expected the connection to keep serving, got: %s", frame.Message)
	}
	if frame.Handle != "h2" {
		t.Errorf("Expected handle h2, got %q", frame.Handle)
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	b := setupTestServer(t)
	conn := dialWS(t, b)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("Failed to send malformed frame: %v", err)
	}

	// The connection survives and still serves requests
	sendRequest(t, conn, "receiveMarkers", "h1", "-1", "-1",
		map[string]float64{"longitude": testLon, "latitude": testLat})
	frame := readFrame(t, conn)
	if !frame.Success {
		t.Fatalf("Expected the connection to survive a malformed frame, got: %s", frame.Message)
	}
}

func TestConcurrentConnections(t *testing.T) {
	b := setupTestServer(t)

	const numConnections = 5
	done := make(chan bool, numConnections)

	for i := 0; i < numConnections; i++ {
		go func(id int) {
			wsURL := "ws" + b.server.URL[4:] + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				t.Errorf("Connection %d failed: %v", id, err)
				done <- false
				return
			}
			defer conn.Close()

			err = conn.WriteJSON(map[string]any{
				"name": "receiveMarkers", "handle": "h", "id": "-1", "token": "-1",
				"message": map[string]float64{"longitude": testLon, "latitude": testLat},
			})
			if err != nil {
				t.Errorf("Connection %d failed to send: %v", id, err)
				done <- false
				return
			}

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var frame responseFrame
			if err := conn.ReadJSON(&frame); err != nil {
				t.Errorf("Connection %d failed to read: %v", id, err)
				done <- false
				return
			}
			done <- frame.Success
		}(i)
	}

	for i := 0; i < numConnections; i++ {
		if !<-done {
			t.Fatal("Expected every concurrent connection to be served")
		}
	}
}
