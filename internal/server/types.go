package server

import (
	"context"
	"strings"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/model"
)

// Sessions is the chat engine as seen by the transport. Connect runs before
// the first Handle of a connection and Disconnect runs once after the last.
// Reject answers a frame the transport refused to hand to Handle.
type Sessions interface {
	Connect(ctx context.Context, conn chat.Conn)
	Disconnect(ctx context.Context, conn chat.Conn)
	Handle(ctx context.Context, conn chat.Conn, raw []byte)
	Reject(conn chat.Conn, raw []byte, reason error)
}

// Authenticator resolves a session token to the identity the connection acts
// as.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
