package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// SendPrivate delivers a message to another user through the private room
// shared by the two, creating the room on first use. The recipient's live
// connections receive it directly; an offline recipient is notified instead.
// The sending connection always gets a confirmation.
func (e *Engine) SendPrivate(ctx context.Context, conn Conn, requestID string, cmd SendPrivate) error {
	sender := conn.Identity()
	if cmd.RecipientID == sender.ID {
		return invalidf("cannot send a private message to yourself")
	}

	if _, err := e.store.FindUser(ctx, cmd.RecipientID); err != nil {
		if store.IsNotFound(err) {
			return ErrRecipientNotFound
		}
		return err
	}

	room, err := e.resolvePrivateRoom(ctx, sender.ID, cmd.RecipientID)
	if err != nil {
		return err
	}

	msg, err := e.store.CreateMessage(ctx, model.Message{
		SenderID:  sender.ID,
		RoomID:    room.ID,
		Content:   cmd.Content,
		Type:      model.MessageText,
		CreatedAt: e.now(),
	})
	if err != nil {
		return err
	}
	if err := e.store.UpdateRoomLastMessage(ctx, room.ID, msg.ID); err != nil {
		logger.Warn("Error updating last message", "room", room.ID, "message", msg.ID, "error", err)
	}

	payload := PrivateMessagePayload{Message: msg.View(sender), RoomID: room.ID}
	if delivered := sendTo(e.presence.ConnectionsOf(cmd.RecipientID), encodeEvent(EventPrivateReceived, "", payload), ""); delivered == 0 {
		e.notify(ctx, cmd.RecipientID, model.Notification{
			UserID:    cmd.RecipientID,
			RoomID:    room.ID,
			MessageID: msg.ID,
			Message:   fmt.Sprintf("New private message from %s", sender.Username),
			CreatedAt: msg.CreatedAt,
		})
	}

	conn.Send(encodeEvent(EventPrivateSent, requestID, payload))
	return nil
}

// resolvePrivateRoom returns the private room of a and b, creating it when
// missing. Concurrent calls for the same pair share one lookup, and a create
// that loses a race against another process resolves to the stored room.
func (e *Engine) resolvePrivateRoom(ctx context.Context, a, b string) (model.Room, error) {
	key := model.PairKey(a, b)
	v, err, _ := e.privateRooms.Do(key, func() (any, error) {
		room, err := e.store.FindPrivateRoom(ctx, a, b)
		if err == nil {
			return room, nil
		}
		if !store.IsNotFound(err) {
			return nil, err
		}

		now := e.now()
		room, err = e.store.CreateRoom(ctx, model.Room{
			Name:      defaultPrivateRoomName,
			Type:      model.RoomPrivate,
			Members:   []string{a, b},
			CreatedBy: a,
			PairKey:   key,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if errors.Is(err, store.ErrConflict) {
			return e.store.FindPrivateRoom(ctx, a, b)
		}
		if err != nil {
			return nil, err
		}
		logger.Info("Private room created", "room", room.ID, "created_by", a)
		return room, nil
	})
	if err != nil {
		return model.Room{}, err
	}
	return v.(model.Room), nil
}
