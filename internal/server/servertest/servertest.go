// Package servertest provides helpers for exercising the GoChat server over
// real HTTP and WebSocket connections in tests.
package servertest

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Origin is the Origin header sent by Dial.
const Origin = "http://localhost:8080"

// Frame is an outbound frame as seen by a client.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

// WebSocketURL turns the base URL of an httptest server into the URL of its
// /ws endpoint with token as the session credential.
func WebSocketURL(t *testing.T, baseURL, token string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Dial opens a WebSocket connection with the default test origin. The HTTP
// response is returned so callers can inspect rejected handshakes.
func Dial(wsURL string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Origin") == "" {
		header.Set("Origin", Origin)
	}
	conn, resp, err := dialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Send writes a command frame.
func Send(t *testing.T, conn *websocket.Conn, typ, requestID string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	frame := map[string]any{"type": typ, "payload": json.RawMessage(data)}
	if requestID != "" {
		frame["requestId"] = requestID
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send %s: %v", typ, err)
	}
}

// Expect reads frames until one of type typ arrives, skipping others, and
// fails the test if none arrives before timeout.
func Expect(t *testing.T, conn *websocket.Conn, typ string, timeout time.Duration) Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("Expected %s frame: %v", typ, err)
		}
		if f.Type == typ {
			return f
		}
	}
}

// Decode unmarshals the payload of f into v.
func Decode(t *testing.T, f Frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Payload, v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", f.Type, err)
	}
}

// Close gracefully closes a WebSocket connection.
func Close(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
