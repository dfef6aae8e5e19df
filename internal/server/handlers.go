// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// sessionToken returns the credential supplied with a WebSocket request,
// from the token query parameter or a bearer Authorization header.
func sessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// WebSocketHandler returns the handler for WebSocket upgrade requests. It
// only accepts GET requests from allowed origins, authenticates the session
// token before upgrading, and registers the resulting client with hub.
func WebSocketHandler(hub *Hub, authenticator Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		if err := verifyOrigin(r); err != nil {
			http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
			return
		}

		identity, err := authenticator.Authenticate(r.Context(), sessionToken(r))
		if err != nil {
			logger.Warn("Authentication failed", "addr", r.RemoteAddr, "error", err)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, identity, r.RemoteAddr)
		if !hub.registerClient(client) {
			logger.Warn("Hub is shutting down, rejecting client", "addr", r.RemoteAddr)
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running!")
}

// TestPageHandler serves an HTML test page for exercising the WebSocket
// protocol: connect with a token, join a room, send messages, and watch the
// events the server pushes.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		logger.Warn("Error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoChat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 240px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>GoChat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="token" placeholder="Session token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="room" placeholder="Room id">
        <button onclick="send('room:join', {roomId: room()})">Join</button>
        <button onclick="send('room:leave', {roomId: room()})">Leave</button>
    </div>
    <div>
        <input type="text" id="content" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        let seq = 0;
        let typing = false;
        const eventsDiv = document.getElementById('events');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const contentInput = document.getElementById('content');

        function room() { return document.getElementById('room').value.trim(); }

        function log(text) {
            const line = document.createElement('div');
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function send(type, payload) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const frame = {type: type, requestId: String(++seq), payload: payload};
            ws.send(JSON.stringify(frame));
            log('> ' + JSON.stringify(frame));
        }

        function sendMessage() {
            const content = contentInput.value.trim();
            if (content && room()) {
                send('message:send', {roomId: room(), content: content, messageType: 'text'});
                contentInput.value = '';
                typing = false;
            }
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const token = encodeURIComponent(document.getElementById('token').value.trim());
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?token=' + token);
            ws.onopen = function() { log('Connected'); updateStatus(true); };
            ws.onmessage = function(event) { log('< ' + event.data); };
            ws.onclose = function() { log('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { log('Connection error'); };
        }

        contentInput.addEventListener('input', function() {
            if (!typing && room()) {
                typing = true;
                send('typing:start', {roomId: room()});
            }
        });
        contentInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
