package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/gochat-rooms/internal/model"
)

// MemoryStore is a process-local Store. It copies records on every read and
// write so callers never share slices with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]model.User
	rooms    map[string]model.Room
	messages map[string]model.Message
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]model.User),
		rooms:    make(map[string]model.Room),
		messages: make(map[string]model.Message),
		now:      time.Now,
	}
}

// PutUser inserts or replaces a user record.
func (s *MemoryStore) PutUser(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// FindUser implements Store.
func (s *MemoryStore) FindUser(_ context.Context, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return model.User{}, Wrap("find user", ErrNotFound)
	}
	return user, nil
}

// UpdateUserPresence implements Store.
func (s *MemoryStore) UpdateUserPresence(_ context.Context, userID string, online bool, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return Wrap("update user presence", ErrNotFound)
	}
	user.IsOnline = online
	user.LastSeen = lastSeen
	s.users[userID] = user
	return nil
}

// FindRoom implements Store.
func (s *MemoryStore) FindRoom(_ context.Context, roomID string) (model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return model.Room{}, Wrap("find room", ErrNotFound)
	}
	return copyRoom(room), nil
}

// FindPrivateRoom implements Store.
func (s *MemoryStore) FindPrivateRoom(_ context.Context, a, b string) (model.Room, error) {
	key := model.PairKey(a, b)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, room := range s.rooms {
		if room.Type == model.RoomPrivate && room.PairKey == key {
			return copyRoom(room), nil
		}
	}
	return model.Room{}, Wrap("find private room", ErrNotFound)
}

// CreateRoom implements Store. A private room whose pair key already exists
// fails with ErrConflict.
func (s *MemoryStore) CreateRoom(_ context.Context, room model.Room) (model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.PairKey != "" {
		for _, existing := range s.rooms {
			if existing.PairKey == room.PairKey {
				return model.Room{}, Wrap("create room", ErrConflict)
			}
		}
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.Type == "" {
		room.Type = model.RoomPublic
	}
	now := s.now()
	room.CreatedAt = now
	room.UpdatedAt = now
	room = copyRoom(room)
	s.rooms[room.ID] = room
	return copyRoom(room), nil
}

// UpdateRoomMembers implements Store.
func (s *MemoryStore) UpdateRoomMembers(_ context.Context, roomID string, members []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return Wrap("update room members", ErrNotFound)
	}
	room.Members = append([]string(nil), members...)
	room.UpdatedAt = s.now()
	s.rooms[roomID] = room
	return nil
}

// UpdateRoomLastMessage implements Store.
func (s *MemoryStore) UpdateRoomLastMessage(_ context.Context, roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return Wrap("update room last message", ErrNotFound)
	}
	room.LastMessage = messageID
	room.UpdatedAt = s.now()
	s.rooms[roomID] = room
	return nil
}

// CreateMessage implements Store.
func (s *MemoryStore) CreateMessage(_ context.Context, msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = s.now()
	msg = copyMessage(msg)
	s.messages[msg.ID] = msg
	return copyMessage(msg), nil
}

// FindMessageByID implements Store.
func (s *MemoryStore) FindMessageByID(_ context.Context, messageID string) (model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return model.Message{}, Wrap("find message", ErrNotFound)
	}
	return copyMessage(msg), nil
}

// UpdateMessageReadBy implements Store.
func (s *MemoryStore) UpdateMessageReadBy(_ context.Context, messageID string, readBy []model.ReadReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return Wrap("update message read by", ErrNotFound)
	}
	msg.ReadBy = append([]model.ReadReceipt(nil), readBy...)
	s.messages[messageID] = msg
	return nil
}

// UpdateMessageReactions implements Store.
func (s *MemoryStore) UpdateMessageReactions(_ context.Context, messageID string, reactions []model.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return Wrap("update message reactions", ErrNotFound)
	}
	msg.Reactions = append([]model.Reaction(nil), reactions...)
	s.messages[messageID] = msg
	return nil
}

func copyRoom(room model.Room) model.Room {
	room.Members = append([]string(nil), room.Members...)
	return room
}

func copyMessage(msg model.Message) model.Message {
	msg.ReadBy = append([]model.ReadReceipt(nil), msg.ReadBy...)
	msg.Reactions = append([]model.Reaction(nil), msg.Reactions...)
	return msg
}
