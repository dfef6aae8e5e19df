// Package mongostore implements the durable chat store on MongoDB.
package mongostore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

const (
	UserCollectionName    = "users"
	RoomCollectionName    = "rooms"
	MessageCollectionName = "messages"
)

// Config holds the MongoDB connection settings.
type Config struct {
	URI              string
	Database         string
	AppName          string
	UseTLS           bool
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	MinPoolSize      uint64
	MaxPoolSize      uint64
}

// Store is a store.Store backed by a MongoDB database.
type Store struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New wraps an already connected database. The store does not own the client.
func New(db *mongo.Database, operationTimeout time.Duration) *Store {
	if operationTimeout <= 0 {
		operationTimeout = 5 * time.Second
	}
	return &Store{db: db, operationTimeout: operationTimeout}
}

// Connect dials MongoDB, verifies the connection, and ensures indexes.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	logger.Debug("Connecting to database...")

	clientOptions := options.Client().ApplyURI(cfg.URI).SetAppName(cfg.AppName)
	if cfg.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %s", evt.Address)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %s (%s)", evt.Address, evt.Reason)
			}
		},
	})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occurred while connecting to database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occurred while pinging database: %w", err)
	}

	s := New(client.Database(cfg.Database), cfg.OperationTimeout)
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logger.Info("Database connected", "database", cfg.Database)
	return s, nil
}

// EnsureIndexes creates the indexes the store relies on. The unique partial
// index on pair_key guarantees a single private room per pair of users.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(RoomCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("rooms_pair_key_unique").
				SetPartialFilterExpression(bson.M{"pair_key": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "members", Value: 1}},
			Options: options.Index().SetName("rooms_members"),
		},
	})
	if err != nil {
		return fmt.Errorf("error occurred while creating room indexes: %w", err)
	}

	_, err = s.db.Collection(MessageCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("messages_room_created_at"),
	})
	if err != nil {
		return fmt.Errorf("error occurred while creating message indexes: %w", err)
	}
	return nil
}

// Close disconnects the client when the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	logger.Info("Closing database connection")
	return s.client.Disconnect(ctx)
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Wrap(op, store.ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return store.Wrap(op, fmt.Errorf("%w: %v", store.ErrConflict, err))
	}
	return store.Wrap(op, fmt.Errorf("database operation failed: %w", err))
}

func (s *Store) findOne(ctx context.Context, op, collection string, filter any, out any) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	startTime := time.Now()
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	logger.DebugF("%s query cost: %v", op, time.Since(startTime))
	return mapError(op, err)
}

func (s *Store) updateByID(ctx context.Context, op, collection, id string, set bson.M) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return mapError(op, err)
	}
	if result.MatchedCount == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	return nil
}

// FindUser implements store.Store.
func (s *Store) FindUser(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	err := s.findOne(ctx, "find user", UserCollectionName, bson.M{"_id": userID}, &user)
	return user, err
}

// UpdateUserPresence implements store.Store.
func (s *Store) UpdateUserPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	return s.updateByID(ctx, "update user presence", UserCollectionName, userID, bson.M{
		"is_online": online,
		"last_seen": lastSeen,
	})
}

// FindRoom implements store.Store.
func (s *Store) FindRoom(ctx context.Context, roomID string) (model.Room, error) {
	var room model.Room
	err := s.findOne(ctx, "find room", RoomCollectionName, bson.M{"_id": roomID}, &room)
	return room, err
}

// FindPrivateRoom implements store.Store.
func (s *Store) FindPrivateRoom(ctx context.Context, a, b string) (model.Room, error) {
	var room model.Room
	filter := bson.M{"room_type": model.RoomPrivate, "pair_key": model.PairKey(a, b)}
	err := s.findOne(ctx, "find private room", RoomCollectionName, filter, &room)
	return room, err
}

// CreateRoom implements store.Store.
func (s *Store) CreateRoom(ctx context.Context, room model.Room) (model.Room, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if room.ID == "" {
		room.ID = primitive.NewObjectID().Hex()
	}
	if room.Type == "" {
		room.Type = model.RoomPublic
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now

	if _, err := s.db.Collection(RoomCollectionName).InsertOne(ctx, room); err != nil {
		return model.Room{}, mapError("create room", err)
	}
	logger.InfoF("Room created: id=%s type=%s members=%d", room.ID, room.Type, len(room.Members))
	return room, nil
}

// UpdateRoomMembers implements store.Store.
func (s *Store) UpdateRoomMembers(ctx context.Context, roomID string, members []string) error {
	return s.updateByID(ctx, "update room members", RoomCollectionName, roomID, bson.M{
		"members":    members,
		"updated_at": time.Now().UTC(),
	})
}

// UpdateRoomLastMessage implements store.Store.
func (s *Store) UpdateRoomLastMessage(ctx context.Context, roomID, messageID string) error {
	return s.updateByID(ctx, "update room last message", RoomCollectionName, roomID, bson.M{
		"last_message": messageID,
		"updated_at":   time.Now().UTC(),
	})
}

// CreateMessage implements store.Store.
func (s *Store) CreateMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	msg.CreatedAt = time.Now().UTC()
	if msg.ReadBy == nil {
		msg.ReadBy = []model.ReadReceipt{}
	}
	if msg.Reactions == nil {
		msg.Reactions = []model.Reaction{}
	}

	if _, err := s.db.Collection(MessageCollectionName).InsertOne(ctx, msg); err != nil {
		return model.Message{}, mapError("create message", err)
	}
	return msg, nil
}

// FindMessageByID implements store.Store.
func (s *Store) FindMessageByID(ctx context.Context, messageID string) (model.Message, error) {
	var msg model.Message
	err := s.findOne(ctx, "find message", MessageCollectionName, bson.M{"_id": messageID}, &msg)
	return msg, err
}

// UpdateMessageReadBy implements store.Store.
func (s *Store) UpdateMessageReadBy(ctx context.Context, messageID string, readBy []model.ReadReceipt) error {
	return s.updateByID(ctx, "update message read by", MessageCollectionName, messageID, bson.M{"read_by": readBy})
}

// UpdateMessageReactions implements store.Store.
func (s *Store) UpdateMessageReactions(ctx context.Context, messageID string, reactions []model.Reaction) error {
	return s.updateByID(ctx, "update message reactions", MessageCollectionName, messageID, bson.M{"reactions": reactions})
}
