// Package model defines the records shared by the chat engine, the durable
// store implementations, and the credential layer.
package model

import (
	"sort"
	"strings"
	"time"
)

// RoomType distinguishes public channels from 1:1 private rooms.
type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

// Identity is the resolved, authenticated user reference attached to a
// connection. It never changes for the life of a connection.
type Identity struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// User is the stored user record.
type User struct {
	ID       string    `json:"_id" bson:"_id"`
	Username string    `json:"username" bson:"username"`
	Email    string    `json:"email,omitempty" bson:"email,omitempty"`
	Avatar   string    `json:"avatar,omitempty" bson:"avatar,omitempty"`
	IsOnline bool      `json:"isOnline" bson:"is_online"`
	LastSeen time.Time `json:"lastSeen" bson:"last_seen"`
}

// Identity projects the user onto the fields exposed to other members.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

// Room is a named channel with persisted membership.
type Room struct {
	ID          string    `json:"_id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Type        RoomType  `json:"roomType" bson:"room_type"`
	Members     []string  `json:"members" bson:"members"`
	CreatedBy   string    `json:"createdBy" bson:"created_by"`
	LastMessage string    `json:"lastMessage,omitempty" bson:"last_message,omitempty"`
	PairKey     string    `json:"-" bson:"pair_key,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at"`
}

// HasMember reports whether userID is a persisted member of the room.
func (r Room) HasMember(userID string) bool {
	for _, member := range r.Members {
		if member == userID {
			return true
		}
	}
	return false
}

// PairKey returns the order-independent key identifying the private room
// between two users.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `json:"user" bson:"user"`
	ReadAt time.Time `json:"readAt" bson:"read_at"`
}

// Reaction is a user's single active emoji on a message.
type Reaction struct {
	UserID string `json:"user" bson:"user"`
	Emoji  string `json:"emoji" bson:"emoji"`
}

// Message is a stored chat message. Content is immutable after creation;
// ReadBy and Reactions hold each user at most once.
type Message struct {
	ID        string        `json:"_id" bson:"_id"`
	SenderID  string        `json:"sender" bson:"sender"`
	RoomID    string        `json:"room" bson:"room"`
	Content   string        `json:"content" bson:"content"`
	Type      MessageType   `json:"messageType" bson:"message_type"`
	FileURL   string        `json:"fileUrl,omitempty" bson:"file_url,omitempty"`
	ReadBy    []ReadReceipt `json:"readBy" bson:"read_by"`
	Reactions []Reaction    `json:"reactions" bson:"reactions"`
	CreatedAt time.Time     `json:"createdAt" bson:"created_at"`
}

// MessageView is a message with its sender expanded for delivery to clients.
type MessageView struct {
	ID        string        `json:"_id"`
	Sender    Identity      `json:"sender"`
	RoomID    string        `json:"room"`
	Content   string        `json:"content"`
	Type      MessageType   `json:"messageType"`
	FileURL   string        `json:"fileUrl,omitempty"`
	ReadBy    []ReadReceipt `json:"readBy"`
	Reactions []Reaction    `json:"reactions"`
	CreatedAt time.Time     `json:"createdAt"`
}

// View expands the message with the given sender identity.
func (m Message) View(sender Identity) MessageView {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []ReadReceipt{}
	}
	reactions := m.Reactions
	if reactions == nil {
		reactions = []Reaction{}
	}
	return MessageView{
		ID:        m.ID,
		Sender:    sender,
		RoomID:    m.RoomID,
		Content:   m.Content,
		Type:      m.Type,
		FileURL:   m.FileURL,
		ReadBy:    readBy,
		Reactions: reactions,
		CreatedAt: m.CreatedAt,
	}
}

// Notification is the alert addressed to a room member who was offline when a
// message arrived.
type Notification struct {
	UserID    string    `json:"userId"`
	RoomID    string    `json:"roomId"`
	MessageID string    `json:"messageId,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
