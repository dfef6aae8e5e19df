package chat

import (
	"context"
	"fmt"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
)

// SendMessage persists a room message, fans it out to the room's subscribers
// and answers the sender with a receipt correlated by requestID. The sender
// does not need an active subscription to the room.
//
// Nothing is broadcast when the message could not be stored. The last
// message pointer and offline notifications are best effort and never undo
// a broadcast that already happened.
func (e *Engine) SendMessage(ctx context.Context, conn Conn, requestID string, cmd SendMessage) Receipt {
	identity := conn.Identity()

	msg, err := e.store.CreateMessage(ctx, model.Message{
		SenderID:  identity.ID,
		RoomID:    cmd.RoomID,
		Content:   cmd.Content,
		Type:      cmd.Type,
		FileURL:   cmd.FileURL,
		CreatedAt: e.now(),
	})
	if err != nil {
		logger.Error("Error sending message", "user", identity.ID, "room", cmd.RoomID, "error", err)
		receipt := Receipt{Success: false, Error: publicMessage(cmd, err)}
		e.reply(conn, requestID, receipt)
		return receipt
	}

	if err := e.store.UpdateRoomLastMessage(ctx, msg.RoomID, msg.ID); err != nil {
		logger.Warn("Error updating last message", "room", msg.RoomID, "message", msg.ID, "error", err)
	}

	e.rooms.Broadcast(msg.RoomID, encodeEvent(EventMessageReceived, "", msg.View(identity)), "")
	if e.typing.Stop(msg.RoomID, conn) {
		e.broadcastTyping(msg.RoomID, conn, false)
	}

	createdAt := msg.CreatedAt
	receipt := Receipt{Success: true, MessageID: msg.ID, Timestamp: &createdAt}
	e.reply(conn, requestID, receipt)

	e.notifyOfflineMembers(ctx, identity, msg)
	return receipt
}

// reply sends the receipt when the command carried a request id. Without one
// a failure is still reported as an error frame.
func (e *Engine) reply(conn Conn, requestID string, receipt Receipt) {
	if requestID != "" {
		conn.Send(encodeEvent(EventMessageAck, requestID, receipt))
		return
	}
	if !receipt.Success {
		conn.Send(encodeEvent(EventError, "", ErrorPayload{Message: receipt.Error}))
	}
}

func (e *Engine) notifyOfflineMembers(ctx context.Context, sender model.Identity, msg model.Message) {
	if e.notifier == nil {
		return
	}
	room, err := e.store.FindRoom(ctx, msg.RoomID)
	if err != nil {
		logger.Warn("Error loading room for notifications", "room", msg.RoomID, "error", err)
		return
	}
	for _, member := range room.Members {
		if member == sender.ID || e.presence.IsOnline(member) {
			continue
		}
		e.notify(ctx, member, model.Notification{
			UserID:    member,
			RoomID:    msg.RoomID,
			MessageID: msg.ID,
			Message:   fmt.Sprintf("New message from %s", sender.Username),
			CreatedAt: msg.CreatedAt,
		})
	}
}

func (e *Engine) notify(ctx context.Context, userID string, notification model.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, userID, notification); err != nil {
		logger.Warn("Error sending notification", "user", userID, "room", notification.RoomID, "error", err)
	}
}
