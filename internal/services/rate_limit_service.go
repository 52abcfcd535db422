package services

import (
	"context"
	"log/slog"
	"time"
)

// WindowStore defines the sliding-window primitive the limiter depends on.
// Implemented by the Redis cache client.
type WindowStore interface {
	SlidingWindowIncr(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, oldest time.Time, err error)
}

// RateLimitConfig holds configuration for signup throttling
type RateLimitConfig struct {
	Quota  int           // max attempts per window per key
	Window time.Duration // sliding window size
}

// RateLimitResult is the outcome of a rate-limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimitService throttles signup attempts per client key using a
// sliding window over the backing store.
type RateLimitService struct {
	store  WindowStore
	config RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store WindowStore, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Check records one attempt for key and decides whether it is allowed.
// The limiter protects against abuse, not correctness, so store errors
// fail open: legitimate signups must not be blocked because Redis is down.
func (s *RateLimitService) Check(ctx context.Context, key string) RateLimitResult {
	now := s.now()

	count, oldest, err := s.store.SlidingWindowIncr(ctx, "ratelimit:signup:"+key, s.config.Window, now)
	if err != nil {
		s.logger.Error("rate limit store unavailable, failing open",
			slog.String("key", key),
			slog.Any("error", err))
		return RateLimitResult{Allowed: true, Remaining: 0, ResetAt: now.Add(s.config.Window)}
	}

	resetAt := now.Add(s.config.Window)
	if !oldest.IsZero() {
		resetAt = oldest.Add(s.config.Window)
	}

	remaining := s.config.Quota - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(s.config.Quota) {
		s.logger.Warn("signup rate limited",
			slog.String("key", key),
			slog.Int64("attempts", count),
			slog.Time("reset_at", resetAt))
		return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	return RateLimitResult{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}
