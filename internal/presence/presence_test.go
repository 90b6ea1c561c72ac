package presence

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	// Parse flags to check for -short
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	defer func() {
		if err := redContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}()
	os.Exit(m.Run())
}

func setupTracker(t *testing.T) *Tracker {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	tracker, err := NewTracker(ctx, testRedisURL)
	require.NoError(t, err)

	// Flush all keys before each test
	require.NoError(t, tracker.rdb.FlushAll(ctx).Err())

	t.Cleanup(func() {
		_ = tracker.Close()
	})
	return tracker
}

func TestTracker_OnlineOffline(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	online, err := tracker.IsOnline(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, tracker.SetOnline(ctx, "user-1"))
	online, err = tracker.IsOnline(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, tracker.SetOffline(ctx, "user-1"))
	online, err = tracker.IsOnline(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestTracker_KeysCarryTTL(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.SetOnline(ctx, "user-1"))
	ttl, err := tracker.rdb.TTL(ctx, keyPrefix+"user-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 0.0)
	assert.LessOrEqual(t, ttl, defaultTTL)
}

func TestTracker_RefreshExtendsTTL(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.SetOnline(ctx, "user-1"))
	require.NoError(t, tracker.rdb.Expire(ctx, keyPrefix+"user-1", time.Second).Err())

	tracker.Refresh(ctx, []string{"user-1"})

	ttl, err := tracker.rdb.TTL(ctx, keyPrefix+"user-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 1.0)
}

func TestTracker_RefreshUnknownUserIsNoOp(t *testing.T) {
	tracker := setupTracker(t)
	tracker.Refresh(context.Background(), []string{"ghost"})
}

func TestNewTracker_BadURL(t *testing.T) {
	_, err := NewTracker(context.Background(), "not-a-url")
	assert.Error(t, err)
}
