package handlers

import (
	"context"
	"time"

	"github.com/maxmove/waitlist-api/internal/models"
	"github.com/maxmove/waitlist-api/internal/services"
)

// MockWaitlistService implements WaitlistService for testing
type MockWaitlistService struct {
	JoinFunc        func(ctx context.Context, req services.JoinRequest) (*services.JoinResult, error)
	CheckEmailFunc  func(ctx context.Context, email string) (*models.Signup, error)
	GetReferrerFunc func(ctx context.Context, code string) (*models.Signup, error)
}

func (m *MockWaitlistService) Join(ctx context.Context, req services.JoinRequest) (*services.JoinResult, error) {
	if m.JoinFunc != nil {
		return m.JoinFunc(ctx, req)
	}
	return nil, models.ErrInternalServer
}

func (m *MockWaitlistService) CheckEmail(ctx context.Context, email string) (*models.Signup, error) {
	if m.CheckEmailFunc != nil {
		return m.CheckEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockWaitlistService) GetReferrer(ctx context.Context, code string) (*models.Signup, error) {
	if m.GetReferrerFunc != nil {
		return m.GetReferrerFunc(ctx, code)
	}
	return nil, models.ErrNotFound
}

func testSignup() *models.Signup {
	return &models.Signup{
		ID:            "signup-1",
		Email:         "a@x.com",
		ReferralCode:  "a1B2c3D4",
		ReferralCount: 3,
		Source:        "popup",
		CreatedAt:     time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}
