package integration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/maxmove/waitlist-api/internal/cache"
	"github.com/maxmove/waitlist-api/internal/config"
)

func setupRedisClient(t *testing.T, ctx context.Context) *cache.Client {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := cache.NewClient(&config.RedisConfig{Host: host, Port: port.Int()}, slog.Default())
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.HealthCheck(ctx))
	return client
}

// TestSlidingWindow drives the Redis sorted-set window primitive directly:
// counts include the current attempt, old entries age out once the window
// passes them, and the oldest surviving timestamp is what the limiter turns
// into ResetAt.
func TestSlidingWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client := setupRedisClient(t, ctx)

	window := time.Hour
	t0 := time.Now()

	t.Run("count includes the current attempt", func(t *testing.T) {
		key := "ratelimit:signup:198.51.100.1"

		count, oldest, err := client.SlidingWindowIncr(ctx, key, window, t0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		// Scores round-trip through float64, so allow a small skew.
		assert.WithinDuration(t, t0, oldest, time.Millisecond)

		count, oldest, err = client.SlidingWindowIncr(ctx, key, window, t0.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		assert.WithinDuration(t, t0, oldest, time.Millisecond) // oldest unchanged
	})

	t.Run("entries age out after the window elapses", func(t *testing.T) {
		key := "ratelimit:signup:198.51.100.2"

		_, _, err := client.SlidingWindowIncr(ctx, key, window, t0)
		require.NoError(t, err)
		_, _, err = client.SlidingWindowIncr(ctx, key, window, t0.Add(10*time.Minute))
		require.NoError(t, err)

		// More than a full window after both attempts: the counter resets
		// to just the new attempt, and the oldest timestamp moves with it.
		later := t0.Add(window + 20*time.Minute)
		count, oldest, err := client.SlidingWindowIncr(ctx, key, window, later)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.WithinDuration(t, later, oldest, time.Millisecond)
	})

	t.Run("keys are isolated", func(t *testing.T) {
		_, _, err := client.SlidingWindowIncr(ctx, "ratelimit:signup:198.51.100.3", window, t0)
		require.NoError(t, err)

		count, _, err := client.SlidingWindowIncr(ctx, "ratelimit:signup:198.51.100.4", window, t0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}
