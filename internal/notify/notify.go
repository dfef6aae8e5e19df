// Package notify delivers offline-member notifications produced by the chat
// engine. Delivery is fire-and-forget: failures are reported to the caller for
// logging and never retried.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/model"
)

// DefaultChannelPrefix prefixes the per-user Redis channel name.
const DefaultChannelPrefix = "notifications:"

// RedisNotifier publishes notifications on a per-user Redis pub/sub channel.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier creates a RedisNotifier. An empty prefix selects
// DefaultChannelPrefix.
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

// Channel returns the channel a user's notifications are published on.
func (n *RedisNotifier) Channel(userID string) string {
	return n.prefix + userID
}

// Notify publishes the notification as JSON.
func (n *RedisNotifier) Notify(ctx context.Context, userID string, notification model.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	receivers, err := n.client.Publish(ctx, n.Channel(userID), payload).Result()
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	logger.Debug("Notification published", "user", userID, "receivers", receivers)
	return nil
}

// Close releases the Redis client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LogNotifier only logs notifications. It is used when no broker is configured.
type LogNotifier struct{}

// Notify implements the notifier contract by logging the notification.
func (LogNotifier) Notify(_ context.Context, userID string, notification model.Notification) error {
	logger.Info("Offline notification", "user", userID, "room", notification.RoomID, "message", notification.Message)
	return nil
}
