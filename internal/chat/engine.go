package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// Store is the durable store the engine reads and mutates.
type Store interface {
	PresenceStore
	FindUser(ctx context.Context, userID string) (model.User, error)
	FindRoom(ctx context.Context, roomID string) (model.Room, error)
	FindPrivateRoom(ctx context.Context, a, b string) (model.Room, error)
	CreateRoom(ctx context.Context, room model.Room) (model.Room, error)
	UpdateRoomMembers(ctx context.Context, roomID string, members []string) error
	UpdateRoomLastMessage(ctx context.Context, roomID, messageID string) error
	CreateMessage(ctx context.Context, msg model.Message) (model.Message, error)
	FindMessageByID(ctx context.Context, messageID string) (model.Message, error)
	UpdateMessageReadBy(ctx context.Context, messageID string, readBy []model.ReadReceipt) error
	UpdateMessageReactions(ctx context.Context, messageID string, reactions []model.Reaction) error
}

// Notifier receives alerts for users that were offline when a message
// addressed to them arrived. Failures are logged and never retried.
type Notifier interface {
	Notify(ctx context.Context, userID string, notification model.Notification) error
}

// Options tunes an Engine.
type Options struct {
	// TypingTTL expires typing entries that were never stopped. Zero disables
	// expiry.
	TypingTTL time.Duration
	// OperationTimeout bounds the storage work of a single command. Zero
	// leaves the caller's context untouched.
	OperationTimeout time.Duration
}

// DefaultTypingTTL is the expiry used when no explicit TTL is configured.
const DefaultTypingTTL = 5 * time.Second

// Engine routes commands from authenticated connections to the presence
// registry, the room index, the typing tracker, and the durable store.
type Engine struct {
	store    Store
	notifier Notifier

	presence *Presence
	rooms    *RoomIndex
	typing   *TypingTracker

	roomLocks    keyedMutex
	messageLocks keyedMutex
	privateRooms singleflight.Group

	opTimeout time.Duration
	now       func() time.Time
}

// NewEngine wires an engine on top of st. notifier may be nil.
func NewEngine(st Store, notifier Notifier, opts Options) *Engine {
	e := &Engine{
		store:     st,
		notifier:  notifier,
		presence:  NewPresence(st),
		rooms:     NewRoomIndex(),
		opTimeout: opts.OperationTimeout,
		now:       time.Now,
	}
	e.typing = NewTypingTracker(opts.TypingTTL, e.typingExpired)
	return e
}

// Presence exposes the registry for read-only queries.
func (e *Engine) Presence() *Presence { return e.presence }

// Rooms exposes the room index for read-only queries.
func (e *Engine) Rooms() *RoomIndex { return e.rooms }

// Typing exposes the typing tracker for read-only queries.
func (e *Engine) Typing() *TypingTracker { return e.typing }

// Close stops background timers.
func (e *Engine) Close() {
	e.typing.Close()
}

// Connect registers an authenticated connection. It must be called before
// any command from conn is handled.
func (e *Engine) Connect(ctx context.Context, conn Conn) {
	ctx, cancel := e.operationContext(ctx)
	defer cancel()
	e.presence.Register(ctx, conn)
}

// Disconnect tears down every piece of runtime state held by conn. It is safe
// to call more than once.
func (e *Engine) Disconnect(ctx context.Context, conn Conn) {
	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	e.presence.Unregister(ctx, conn)
	e.rooms.UnsubscribeAll(conn)
	for _, roomID := range e.typing.ClearConnection(conn) {
		e.broadcastTyping(roomID, conn, false)
	}
}

// Handle decodes one inbound frame from conn and runs the command it
// carries. Failures are reported to conn only.
func (e *Engine) Handle(ctx context.Context, conn Conn, raw []byte) {
	cmd, requestID, err := DecodeCommand(raw)
	if err != nil {
		logger.Warn("Rejected frame", "user", conn.Identity().ID, "conn", conn.ID(), "error", err)
		e.sendError(conn, requestID, nil, err)
		return
	}

	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	switch c := cmd.(type) {
	case JoinRoom:
		err = e.JoinRoom(ctx, conn, requestID, c)
	case LeaveRoom:
		e.LeaveRoom(conn, c)
	case SendMessage:
		e.SendMessage(ctx, conn, requestID, c)
	case TypingStart:
		e.StartTyping(conn, c)
	case TypingStop:
		e.StopTyping(conn, c)
	case MarkRead:
		err = e.MarkRead(ctx, conn, c)
	case React:
		err = e.React(ctx, conn, c)
	case SendPrivate:
		err = e.SendPrivate(ctx, conn, requestID, c)
	}
	if err != nil {
		logger.Error("Error handling command", "action", cmd.action(), "user", conn.Identity().ID, "conn", conn.ID(), "error", err)
		e.sendError(conn, requestID, cmd, err)
	}
}

// Reject answers a frame that will not be handled, for instance because the
// transport throttled it. A send-message frame gets a failed receipt and
// anything else an error frame, both carrying the frame's request id.
func (e *Engine) Reject(conn Conn, raw []byte, reason error) {
	var envelope Frame
	if err := json.Unmarshal(raw, &envelope); err != nil {
		envelope = Frame{}
	}
	logger.Warn("Frame rejected", "type", envelope.Type, "user", conn.Identity().ID, "conn", conn.ID(), "reason", reason)

	if envelope.Type == TypeSendMessage {
		e.reply(conn, envelope.RequestID, Receipt{Success: false, Error: publicMessage(nil, reason)})
		return
	}
	e.sendError(conn, envelope.RequestID, nil, reason)
}

// JoinRoom subscribes conn to a room, adding its user to the persisted
// membership first when needed.
func (e *Engine) JoinRoom(ctx context.Context, conn Conn, requestID string, cmd JoinRoom) error {
	identity := conn.Identity()
	room, err := e.ensureMember(ctx, cmd.RoomID, identity.ID)
	if err != nil {
		return err
	}

	added := e.rooms.Subscribe(room.ID, conn)
	if !e.presence.Has(conn) {
		// Disconnected while the membership was being loaded.
		e.rooms.Unsubscribe(room.ID, conn)
		return nil
	}

	conn.Send(encodeEvent(EventRoomJoined, requestID, RoomJoinedPayload{RoomID: room.ID, Room: room}))
	if added {
		logger.Info("User joined room", "user", identity.ID, "room", room.ID, "conn", conn.ID())
		e.rooms.Broadcast(room.ID, encodeEvent(EventUserJoined, "", MembershipPayload{
			RoomID:  room.ID,
			User:    identity,
			Message: fmt.Sprintf("%s joined the room", identity.Username),
		}), conn.ID())
	}
	return nil
}

func (e *Engine) ensureMember(ctx context.Context, roomID, userID string) (model.Room, error) {
	unlock := e.roomLocks.Lock(roomID)
	defer unlock()

	room, err := e.store.FindRoom(ctx, roomID)
	if err != nil {
		if store.IsNotFound(err) {
			return model.Room{}, ErrRoomNotFound
		}
		return model.Room{}, err
	}
	if room.HasMember(userID) {
		return room, nil
	}
	if room.Type == model.RoomPrivate {
		return model.Room{}, ErrNotRoomMember
	}

	members := make([]string, 0, len(room.Members)+1)
	members = append(members, room.Members...)
	members = append(members, userID)
	if err := e.store.UpdateRoomMembers(ctx, room.ID, members); err != nil {
		return model.Room{}, err
	}
	room.Members = members
	return room, nil
}

// LeaveRoom drops the runtime subscription of conn. Persisted membership is
// left unchanged.
func (e *Engine) LeaveRoom(conn Conn, cmd LeaveRoom) {
	identity := conn.Identity()
	removed := e.rooms.Unsubscribe(cmd.RoomID, conn)
	if e.typing.Stop(cmd.RoomID, conn) {
		e.broadcastTyping(cmd.RoomID, conn, false)
	}
	if !removed {
		return
	}
	logger.Info("User left room", "user", identity.ID, "room", cmd.RoomID, "conn", conn.ID())
	e.rooms.Broadcast(cmd.RoomID, encodeEvent(EventUserLeft, "", MembershipPayload{
		RoomID:  cmd.RoomID,
		User:    identity,
		Message: fmt.Sprintf("%s left the room", identity.Username),
	}), conn.ID())
}

// StartTyping marks the user of conn as typing. Connections that are not
// subscribed to the room are ignored.
func (e *Engine) StartTyping(conn Conn, cmd TypingStart) {
	if !e.rooms.IsSubscribed(cmd.RoomID, conn.ID()) {
		logger.Debug("Typing ignored for unsubscribed connection", "room", cmd.RoomID, "conn", conn.ID())
		return
	}
	if !e.typing.Start(cmd.RoomID, conn) {
		return
	}
	if !e.rooms.IsSubscribed(cmd.RoomID, conn.ID()) {
		e.typing.Stop(cmd.RoomID, conn)
		return
	}
	e.broadcastTyping(cmd.RoomID, conn, true)
}

// StopTyping clears the typing state of conn and always announces it.
func (e *Engine) StopTyping(conn Conn, cmd TypingStop) {
	e.typing.Stop(cmd.RoomID, conn)
	e.broadcastTyping(cmd.RoomID, conn, false)
}

func (e *Engine) typingExpired(roomID string, conn Conn) {
	logger.Debug("Typing expired", "room", roomID, "conn", conn.ID())
	e.broadcastTyping(roomID, conn, false)
}

func (e *Engine) broadcastTyping(roomID string, conn Conn, typing bool) {
	identity := conn.Identity()
	e.rooms.Broadcast(roomID, encodeEvent(EventTyping, "", TypingPayload{
		RoomID:   roomID,
		UserID:   identity.ID,
		Username: identity.Username,
		IsTyping: typing,
	}), conn.ID())
}

func (e *Engine) sendError(conn Conn, requestID string, cmd Command, err error) {
	conn.Send(encodeEvent(EventError, requestID, ErrorPayload{Message: publicMessage(cmd, err)}))
}

func (e *Engine) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opTimeout)
}
