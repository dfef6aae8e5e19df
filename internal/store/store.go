// Package store defines the durable store consumed by the chat engine and
// ships an in-memory implementation used by tests and local development.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/model"
)

var (
	// ErrNotFound is returned when a user, room, or message does not exist.
	ErrNotFound = errors.New("document does not exist")
	// ErrConflict is returned when a create collides with a unique key.
	ErrConflict = errors.New("unique key conflicts")
)

// StorageError wraps any failure of the underlying store with the operation
// that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in a StorageError for op, or nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsNotFound reports whether err denotes a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the durable store the chat engine depends on. All methods may fail
// with a *StorageError.
type Store interface {
	FindUser(ctx context.Context, userID string) (model.User, error)
	UpdateUserPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error

	FindRoom(ctx context.Context, roomID string) (model.Room, error)
	// FindPrivateRoom finds the private room whose members are exactly a and b.
	FindPrivateRoom(ctx context.Context, a, b string) (model.Room, error)
	CreateRoom(ctx context.Context, room model.Room) (model.Room, error)
	UpdateRoomMembers(ctx context.Context, roomID string, members []string) error
	UpdateRoomLastMessage(ctx context.Context, roomID, messageID string) error

	CreateMessage(ctx context.Context, msg model.Message) (model.Message, error)
	FindMessageByID(ctx context.Context, messageID string) (model.Message, error)
	UpdateMessageReadBy(ctx context.Context, messageID string, readBy []model.ReadReceipt) error
	UpdateMessageReactions(ctx context.Context, messageID string, reactions []model.Reaction) error
}
