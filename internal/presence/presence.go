// Package presence tracks which users currently hold a live realtime
// connection, backed by Redis so the rest of the application (dashboards,
// doctor lists) can render online indicators without touching the registry.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "presence:user:"
	defaultTTL = 90 * time.Second
	opTimeout  = 2 * time.Second
)

// Tracker records per-user online state in Redis. Keys carry a TTL so a
// crashed server instance cannot leave users permanently "online"; the
// refresh loop keeps keys alive while connections exist.
type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTracker creates a tracker from a Redis URL
// (e.g. "redis://localhost:6379").
func NewTracker(ctx context.Context, redisURL string) (*Tracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Tracker{rdb: rdb, ttl: defaultTTL}, nil
}

// Close releases the underlying Redis connection.
func (t *Tracker) Close() error {
	return t.rdb.Close()
}

// SetOnline marks userID online.
func (t *Tracker) SetOnline(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := t.rdb.Set(ctx, keyPrefix+userID, "online", t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence for %s: %w", userID, err)
	}
	return nil
}

// SetOffline clears userID's online marker.
func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := t.rdb.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to clear presence for %s: %w", userID, err)
	}
	return nil
}

// Refresh extends the TTL for every user in userIDs. Called periodically by
// the server while connections are live.
func (t *Tracker) Refresh(ctx context.Context, userIDs []string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	for _, id := range userIDs {
		if err := t.rdb.Expire(ctx, keyPrefix+id, t.ttl).Err(); err != nil {
			slog.Warn("failed to refresh presence", "user_id", id, "error", err)
			return
		}
	}
}

// IsOnline reports whether userID currently holds a live connection on any
// server instance.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := t.rdb.Exists(ctx, keyPrefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence for %s: %w", userID, err)
	}
	return n > 0, nil
}
