package services

import (
	"context"
	"time"

	"github.com/maxmove/waitlist-api/internal/models"
)

// MockSignupRepository implements SignupRepository for testing
type MockSignupRepository struct {
	GetByEmailFunc             func(ctx context.Context, email string) (*models.Signup, error)
	GetByCodeFunc              func(ctx context.Context, code string) (*models.Signup, error)
	CreateFunc                 func(ctx context.Context, signup *models.Signup) (*models.Signup, error)
	IncrementReferralCountFunc func(ctx context.Context, code string) error
	CountFunc                  func(ctx context.Context) (int64, error)
	MarkNotifiedFunc           func(ctx context.Context, id string) error
}

func (m *MockSignupRepository) GetByEmail(ctx context.Context, email string) (*models.Signup, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockSignupRepository) GetByCode(ctx context.Context, code string) (*models.Signup, error) {
	if m.GetByCodeFunc != nil {
		return m.GetByCodeFunc(ctx, code)
	}
	return nil, models.ErrNotFound
}

func (m *MockSignupRepository) Create(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, signup)
	}
	return nil, models.ErrInternalServer
}

func (m *MockSignupRepository) IncrementReferralCount(ctx context.Context, code string) error {
	if m.IncrementReferralCountFunc != nil {
		return m.IncrementReferralCountFunc(ctx, code)
	}
	return nil
}

func (m *MockSignupRepository) Count(ctx context.Context) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockSignupRepository) MarkNotified(ctx context.Context, id string) error {
	if m.MarkNotifiedFunc != nil {
		return m.MarkNotifiedFunc(ctx, id)
	}
	return nil
}

// MockRateLimiter implements RateLimiter for testing
type MockRateLimiter struct {
	CheckFunc func(ctx context.Context, key string) RateLimitResult
}

func (m *MockRateLimiter) Check(ctx context.Context, key string) RateLimitResult {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, key)
	}
	return RateLimitResult{Allowed: true}
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendWaitlistConfirmationFunc func(ctx context.Context, email, referralCode string, position int64) error
}

func (m *MockEmailService) SendWaitlistConfirmation(ctx context.Context, email, referralCode string, position int64) error {
	if m.SendWaitlistConfirmationFunc != nil {
		return m.SendWaitlistConfirmationFunc(ctx, email, referralCode, position)
	}
	return nil
}

// MockWindowStore implements WindowStore for rate limiter tests
type MockWindowStore struct {
	SlidingWindowIncrFunc func(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error)
}

func (m *MockWindowStore) SlidingWindowIncr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	if m.SlidingWindowIncrFunc != nil {
		return m.SlidingWindowIncrFunc(ctx, key, window, now)
	}
	return 1, time.Time{}, nil
}

// NewTestSignup constructs a signup record for tests
func NewTestSignup(id, email, code string) *models.Signup {
	return &models.Signup{
		ID:           id,
		Email:        email,
		ReferralCode: code,
		Source:       "popup",
		CreatedAt:    time.Now(),
	}
}
