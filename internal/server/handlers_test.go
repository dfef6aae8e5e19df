package server_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/server"
)

func TestHealthHandler(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			server.HealthHandler(rr, httptest.NewRequest(method, "/", http.NoBody))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			assert.Equal(t, "GoChat server is running!", rr.Body.String())
		})
	}
}

func TestTestPageHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	server.TestPageHandler(rr, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "GoChat WebSocket Test")
	assert.Contains(t, rr.Body.String(), "room:join")
}

func TestRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{name: "health", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "test page", method: http.MethodGet, path: "/test", status: http.StatusOK},
		{name: "websocket rejects POST", method: http.MethodPost, path: "/ws", status: http.StatusMethodNotAllowed},
		{name: "websocket without origin", method: http.MethodGet, path: "/ws", status: http.StatusForbidden, body: "missing Origin header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, env.server.URL+tt.path, http.NoBody)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, string(body), tt.body)
		})
	}
}
