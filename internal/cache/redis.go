package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maxmove/waitlist-api/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection used by the rate limiter. It is
// constructed once at process start and injected where needed.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewClient(cfg *config.RedisConfig, logger *slog.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Ping is advisory only: the limiter fails open, so an unreachable
	// Redis must not prevent startup.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, rate limiting will fail open", slog.Any("error", err))
	} else {
		logger.Info("redis connection established", slog.String("addr", cfg.Addr()))
	}

	return &Client{rdb: rdb, logger: logger}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// SlidingWindowIncr records one attempt under key and returns the number of
// attempts inside the window, including this one, together with the
// timestamp of the oldest attempt still in the window. The sorted set is
// trimmed and given a TTL in the same pipeline so abandoned keys expire on
// their own.
func (c *Client) SlidingWindowIncr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	cutoff := now.Add(-window).UnixNano()
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("sliding window update failed: %w", err)
	}

	count := card.Val()

	var oldestAt time.Time
	if entries := oldest.Val(); len(entries) > 0 {
		oldestAt = time.Unix(0, int64(entries[0].Score))
	}

	return count, oldestAt, nil
}
