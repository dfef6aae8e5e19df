package chat

import "github.com/Tyrowin/gochat-rooms/internal/model"

// Conn is one live, authenticated transport session.
type Conn interface {
	// ID is unique per connection for the life of the process.
	ID() string
	// Identity is the user the connection authenticated as.
	Identity() model.Identity
	// Send queues an encoded frame without blocking. It returns false when the
	// frame was dropped because the connection is closed or saturated.
	Send(frame []byte) bool
}

// sendTo delivers frame to every connection in conns except the one whose id
// is except, returning the number of successful deliveries.
func sendTo(conns []Conn, frame []byte, except string) int {
	if frame == nil {
		return 0
	}
	delivered := 0
	for _, conn := range conns {
		if except != "" && conn.ID() == except {
			continue
		}
		if conn.Send(frame) {
			delivered++
		}
	}
	return delivered
}
