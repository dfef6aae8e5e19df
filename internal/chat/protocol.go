package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
)

// Inbound frame types.
const (
	TypeJoinRoom       = "room:join"
	TypeLeaveRoom      = "room:leave"
	TypeSendMessage    = "message:send"
	TypeTypingStart    = "typing:start"
	TypeTypingStop     = "typing:stop"
	TypeMarkRead       = "message:read"
	TypeReact          = "message:reaction"
	TypePrivateMessage = "private:message"
)

// Outbound frame types.
const (
	EventUsersOnline     = "users:online"
	EventRoomJoined      = "room:joined"
	EventUserJoined      = "user:joined"
	EventUserLeft        = "user:left"
	EventMessageReceived = "message:received"
	EventMessageAck      = "message:ack"
	EventTyping          = "typing:user"
	EventReadUpdate      = "message:read:update"
	EventReactionUpdate  = "message:reaction:update"
	EventPrivateReceived = "private:message:received"
	EventPrivateSent     = "private:message:sent"
	EventError           = "error"
)

const (
	maxContentRunes        = 5000
	maxEmojiRunes          = 32
	defaultPrivateRoomName = "Private Chat"
)

// Frame is the envelope of every message exchanged with a client. RequestID
// correlates a response with the inbound frame that caused it.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Command is a validated inbound frame. The set of implementations is closed.
type Command interface {
	// action names the operation in failure messages sent to the actor.
	action() string
	validate() error
}

// JoinRoom subscribes the connection to a room.
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

// LeaveRoom drops the connection's subscription to a room.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// SendMessage posts a message to a room and expects a correlated receipt.
type SendMessage struct {
	Content string            `json:"content"`
	RoomID  string            `json:"roomId"`
	Type    model.MessageType `json:"messageType"`
	FileURL string            `json:"fileUrl"`
}

// TypingStart marks the sender as typing in a room.
type TypingStart struct {
	RoomID string `json:"roomId"`
}

// TypingStop clears the sender's typing state in a room.
type TypingStop struct {
	RoomID string `json:"roomId"`
}

// MarkRead records a read receipt.
type MarkRead struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// React sets the sender's reaction on a message.
type React struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	RoomID    string `json:"roomId"`
}

// SendPrivate sends a point-to-point message to another user.
type SendPrivate struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

func (JoinRoom) action() string    { return "join room" }
func (LeaveRoom) action() string   { return "leave room" }
func (SendMessage) action() string { return "send message" }
func (TypingStart) action() string { return "start typing" }
func (TypingStop) action() string  { return "stop typing" }
func (MarkRead) action() string    { return "mark message as read" }
func (React) action() string       { return "add reaction" }
func (SendPrivate) action() string { return "send private message" }

func (c JoinRoom) validate() error    { return requireField("roomId", c.RoomID) }
func (c LeaveRoom) validate() error   { return requireField("roomId", c.RoomID) }
func (c TypingStart) validate() error { return requireField("roomId", c.RoomID) }
func (c TypingStop) validate() error  { return requireField("roomId", c.RoomID) }
func (c MarkRead) validate() error    { return requireField("messageId", c.MessageID) }

func (c SendMessage) validate() error {
	if err := requireField("roomId", c.RoomID); err != nil {
		return err
	}
	if !c.Type.Valid() {
		return invalidf("unsupported messageType %q", c.Type)
	}
	switch c.Type {
	case model.MessageText:
		if err := requireField("content", c.Content); err != nil {
			return err
		}
	case model.MessageImage, model.MessageFile:
		if err := requireField("fileUrl", c.FileURL); err != nil {
			return err
		}
	}
	if len([]rune(c.Content)) > maxContentRunes {
		return invalidf("content exceeds %d characters", maxContentRunes)
	}
	return nil
}

func (c React) validate() error {
	if err := requireField("messageId", c.MessageID); err != nil {
		return err
	}
	if err := requireField("emoji", c.Emoji); err != nil {
		return err
	}
	if len([]rune(c.Emoji)) > maxEmojiRunes {
		return invalidf("emoji exceeds %d characters", maxEmojiRunes)
	}
	return nil
}

func (c SendPrivate) validate() error {
	if err := requireField("recipientId", c.RecipientID); err != nil {
		return err
	}
	if err := requireField("content", c.Content); err != nil {
		return err
	}
	if len([]rune(c.Content)) > maxContentRunes {
		return invalidf("content exceeds %d characters", maxContentRunes)
	}
	return nil
}

func requireField(name, value string) error {
	if value == "" {
		return invalidf("%s is required", name)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

// DecodeCommand parses a raw inbound frame into its command. The request id
// is returned even when the payload is invalid so the error can be correlated.
func DecodeCommand(raw []byte) (Command, string, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, "", invalidf("invalid frame payload")
	}

	var cmd Command
	switch frame.Type {
	case TypeJoinRoom:
		cmd = decodePayload[JoinRoom](frame.Payload, trimJoin)
	case TypeLeaveRoom:
		cmd = decodePayload[LeaveRoom](frame.Payload, trimLeave)
	case TypeSendMessage:
		cmd = decodePayload[SendMessage](frame.Payload, trimSend)
	case TypeTypingStart:
		cmd = decodePayload[TypingStart](frame.Payload, trimTypingStart)
	case TypeTypingStop:
		cmd = decodePayload[TypingStop](frame.Payload, trimTypingStop)
	case TypeMarkRead:
		cmd = decodePayload[MarkRead](frame.Payload, trimRead)
	case TypeReact:
		cmd = decodePayload[React](frame.Payload, trimReact)
	case TypePrivateMessage:
		cmd = decodePayload[SendPrivate](frame.Payload, trimPrivate)
	default:
		return nil, frame.RequestID, invalidf("unsupported frame type %q", frame.Type)
	}
	if cmd == nil {
		return nil, frame.RequestID, invalidf("invalid %s payload", frame.Type)
	}
	if err := cmd.validate(); err != nil {
		return nil, frame.RequestID, err
	}
	return cmd, frame.RequestID, nil
}

func decodePayload[T Command](payload json.RawMessage, normalize func(*T)) Command {
	var cmd T
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil
	}
	normalize(&cmd)
	return cmd
}

func trimJoin(c *JoinRoom)           { c.RoomID = strings.TrimSpace(c.RoomID) }
func trimLeave(c *LeaveRoom)         { c.RoomID = strings.TrimSpace(c.RoomID) }
func trimTypingStart(c *TypingStart) { c.RoomID = strings.TrimSpace(c.RoomID) }
func trimTypingStop(c *TypingStop)   { c.RoomID = strings.TrimSpace(c.RoomID) }

func trimSend(c *SendMessage) {
	c.RoomID = strings.TrimSpace(c.RoomID)
	c.Content = strings.TrimSpace(c.Content)
	c.FileURL = strings.TrimSpace(c.FileURL)
	if c.Type == "" {
		c.Type = model.MessageText
	}
}

func trimRead(c *MarkRead) {
	c.MessageID = strings.TrimSpace(c.MessageID)
	c.RoomID = strings.TrimSpace(c.RoomID)
}

func trimReact(c *React) {
	c.MessageID = strings.TrimSpace(c.MessageID)
	c.RoomID = strings.TrimSpace(c.RoomID)
	c.Emoji = strings.TrimSpace(c.Emoji)
}

func trimPrivate(c *SendPrivate) {
	c.RecipientID = strings.TrimSpace(c.RecipientID)
	c.Content = strings.TrimSpace(c.Content)
}

// Outbound payloads.

type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}

type RoomJoinedPayload struct {
	RoomID string     `json:"roomId"`
	Room   model.Room `json:"room"`
}

type MembershipPayload struct {
	RoomID  string         `json:"roomId"`
	User    model.Identity `json:"user"`
	Message string         `json:"message"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type ReadUpdatePayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

type ReactionUpdatePayload struct {
	MessageID string           `json:"messageId"`
	Reactions []model.Reaction `json:"reactions"`
}

type PrivateMessagePayload struct {
	Message model.MessageView `json:"message"`
	RoomID  string            `json:"roomId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Receipt is the correlated response to a send-message command.
type Receipt struct {
	Success   bool       `json:"success"`
	MessageID string     `json:"messageId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload"`
}

// encodeEvent marshals an outbound frame. A nil result means the payload
// could not be encoded and nothing should be sent.
func encodeEvent(eventType, requestID string, payload any) []byte {
	data, err := json.Marshal(outboundFrame{Type: eventType, RequestID: requestID, Payload: payload})
	if err != nil {
		logger.Error("Error encoding outbound frame", "type", eventType, "error", err)
		return nil
	}
	return data
}
