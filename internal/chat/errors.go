package chat

import "errors"

var (
	// ErrInvalidCommand is returned for frames that fail boundary validation.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrRoomNotFound is returned when a join targets an unknown room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotRoomMember is returned when a non-member tries to join a private room.
	ErrNotRoomMember = errors.New("not a member of this room")
	// ErrRecipientNotFound is returned when a private message targets an unknown user.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrRateLimited is reported for frames the transport refused to handle
	// because the connection is sending too fast.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// publicMessage is the text sent to the acting connection for err. Anything
// that is not a validation or lookup failure, storage errors included, is
// reported generically.
func publicMessage(cmd Command, err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand),
		errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrNotRoomMember),
		errors.Is(err, ErrRecipientNotFound),
		errors.Is(err, ErrRateLimited):
		return err.Error()
	case cmd != nil:
		return "Failed to " + cmd.action()
	default:
		return "Request failed"
	}
}
