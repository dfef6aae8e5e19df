package chat

import (
	"context"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// MarkRead records that the user of conn has read a message and announces it
// to the message's room. The announcement is made even if the user had
// already read the message. A missing message is logged and ignored.
func (e *Engine) MarkRead(ctx context.Context, conn Conn, cmd MarkRead) error {
	identity := conn.Identity()

	unlock := e.messageLocks.Lock(cmd.MessageID)
	defer unlock()

	msg, err := e.store.FindMessageByID(ctx, cmd.MessageID)
	if err != nil {
		if store.IsNotFound(err) {
			logger.Warn("Read receipt for unknown message", "message", cmd.MessageID, "user", identity.ID)
			return nil
		}
		return err
	}
	e.checkRoom(cmd.RoomID, msg)

	if readBy, added := appendReadReceipt(msg.ReadBy, identity.ID, e.now()); added {
		if err := e.store.UpdateMessageReadBy(ctx, msg.ID, readBy); err != nil {
			if store.IsNotFound(err) {
				logger.Warn("Message removed before read receipt was stored", "message", msg.ID)
				return nil
			}
			return err
		}
	}

	e.rooms.Broadcast(msg.RoomID, encodeEvent(EventReadUpdate, "", ReadUpdatePayload{
		MessageID: msg.ID,
		UserID:    identity.ID,
	}), "")
	return nil
}

// React sets the reaction of the user of conn on a message, replacing any
// earlier one, and announces the full reaction set to the message's room. A
// missing message is logged and ignored.
func (e *Engine) React(ctx context.Context, conn Conn, cmd React) error {
	identity := conn.Identity()

	unlock := e.messageLocks.Lock(cmd.MessageID)
	defer unlock()

	msg, err := e.store.FindMessageByID(ctx, cmd.MessageID)
	if err != nil {
		if store.IsNotFound(err) {
			logger.Warn("Reaction for unknown message", "message", cmd.MessageID, "user", identity.ID)
			return nil
		}
		return err
	}
	e.checkRoom(cmd.RoomID, msg)

	reactions := setReaction(msg.Reactions, identity.ID, cmd.Emoji)
	if err := e.store.UpdateMessageReactions(ctx, msg.ID, reactions); err != nil {
		if store.IsNotFound(err) {
			logger.Warn("Message removed before reaction was stored", "message", msg.ID)
			return nil
		}
		return err
	}

	e.rooms.Broadcast(msg.RoomID, encodeEvent(EventReactionUpdate, "", ReactionUpdatePayload{
		MessageID: msg.ID,
		Reactions: reactions,
	}), "")
	return nil
}

// checkRoom logs a client-supplied room id that disagrees with the stored
// message. Updates always go to the stored room.
func (e *Engine) checkRoom(roomID string, msg model.Message) {
	if roomID != "" && roomID != msg.RoomID {
		logger.Warn("Room mismatch on message update", "message", msg.ID, "room", roomID, "stored_room", msg.RoomID)
	}
}

// appendReadReceipt adds a receipt for userID unless one is already present.
func appendReadReceipt(readBy []model.ReadReceipt, userID string, now time.Time) ([]model.ReadReceipt, bool) {
	for _, receipt := range readBy {
		if receipt.UserID == userID {
			return readBy, false
		}
	}
	next := make([]model.ReadReceipt, 0, len(readBy)+1)
	next = append(next, readBy...)
	return append(next, model.ReadReceipt{UserID: userID, ReadAt: now}), true
}

// setReaction returns reactions with userID's entry set to emoji.
func setReaction(reactions []model.Reaction, userID, emoji string) []model.Reaction {
	next := make([]model.Reaction, 0, len(reactions)+1)
	replaced := false
	for _, reaction := range reactions {
		if reaction.UserID == userID {
			if replaced {
				continue
			}
			reaction.Emoji = emoji
			replaced = true
		}
		next = append(next, reaction)
	}
	if !replaced {
		next = append(next, model.Reaction{UserID: userID, Emoji: emoji})
	}
	return next
}
