package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/maxmove/waitlist-api/internal/models"
	pkglogger "github.com/maxmove/waitlist-api/pkg/logger"
	"github.com/maxmove/waitlist-api/pkg/referral"
	"github.com/stretchr/testify/assert"
)

func newTestSignupService(repo *MockSignupRepository, limiter *MockRateLimiter, email *MockEmailService) *SignupService {
	logger := slog.Default()
	if limiter == nil {
		limiter = &MockRateLimiter{}
	}
	if email == nil {
		email = &MockEmailService{}
	}
	return NewSignupService(repo, limiter, email, logger, pkglogger.NewAuditLogger(logger))
}

func echoCreate() func(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
	return func(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
		signup.ID = "signup-1"
		signup.CreatedAt = time.Now()
		return signup, nil
	}
}

func TestSignupService_Join_NewSignup(t *testing.T) {
	var sentTo string
	var sentPosition int64

	repo := &MockSignupRepository{
		CreateFunc: echoCreate(),
		CountFunc: func(ctx context.Context) (int64, error) {
			return 42, nil
		},
	}
	email := &MockEmailService{
		SendWaitlistConfirmationFunc: func(ctx context.Context, to, code string, position int64) error {
			sentTo = to
			sentPosition = position
			return nil
		},
	}

	svc := newTestSignupService(repo, nil, email)

	result, err := svc.Join(context.Background(), JoinRequest{
		Email:     "A@X.com",
		Source:    "popup",
		ClientKey: "203.0.113.7",
	})

	assert.NoError(t, err)
	assert.False(t, result.AlreadyJoined)
	assert.Equal(t, "a@x.com", result.Signup.Email) // normalized
	assert.True(t, referral.Valid(result.Signup.ReferralCode))
	assert.Equal(t, int64(42), result.Count)
	assert.True(t, result.EmailSent)
	assert.Equal(t, "a@x.com", sentTo)
	assert.Equal(t, int64(42), sentPosition)
}

func TestSignupService_Join_ResubmissionIsIdempotent(t *testing.T) {
	existing := NewTestSignup("signup-1", "a@x.com", "a1B2c3D4")
	createCalled := false
	emailSent := false

	repo := &MockSignupRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Signup, error) {
			return existing, nil
		},
		CreateFunc: func(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
			createCalled = true
			return signup, nil
		},
		CountFunc: func(ctx context.Context) (int64, error) {
			return 42, nil
		},
	}
	email := &MockEmailService{
		SendWaitlistConfirmationFunc: func(ctx context.Context, to, code string, position int64) error {
			emailSent = true
			return nil
		},
	}

	svc := newTestSignupService(repo, nil, email)

	result, err := svc.Join(context.Background(), JoinRequest{Email: "a@x.com", Source: "popup"})

	assert.NoError(t, err)
	assert.True(t, result.AlreadyJoined)
	assert.Equal(t, "a1B2c3D4", result.Signup.ReferralCode) // same code returned
	assert.Equal(t, int64(42), result.Count)                // count unchanged
	assert.False(t, createCalled)
	assert.False(t, emailSent) // no duplicate notification
}

func TestSignupService_Join_InvalidEmail(t *testing.T) {
	repo := &MockSignupRepository{}
	svc := newTestSignupService(repo, nil, nil)

	result, err := svc.Join(context.Background(), JoinRequest{Email: "not-an-email"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrInvalidEmail)
}

func TestSignupService_Join_RateLimited(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Minute)
	limiter := &MockRateLimiter{
		CheckFunc: func(ctx context.Context, key string) RateLimitResult {
			return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: resetAt}
		},
	}

	svc := newTestSignupService(&MockSignupRepository{}, limiter, nil)

	result, err := svc.Join(context.Background(), JoinRequest{Email: "a@x.com", ClientKey: "203.0.113.7"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrRateLimited)

	var rle *RateLimitedError
	assert.True(t, errors.As(err, &rle))
	assert.Equal(t, resetAt, rle.Result.ResetAt)
}

func TestSignupService_Join_ReferralAttributed(t *testing.T) {
	referrer := NewTestSignup("referrer-1", "r@x.com", "a1B2c3D4")
	var incrementedCode string

	repo := &MockSignupRepository{
		GetByCodeFunc: func(ctx context.Context, code string) (*models.Signup, error) {
			return referrer, nil
		},
		CreateFunc: echoCreate(),
		IncrementReferralCountFunc: func(ctx context.Context, code string) error {
			incrementedCode = code
			return nil
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	result, err := svc.Join(context.Background(), JoinRequest{
		Email:        "b@x.com",
		Source:       "popup",
		ReferralCode: "a1B2c3D4",
	})

	assert.NoError(t, err)
	assert.Equal(t, "a1B2c3D4", incrementedCode)
	if assert.NotNil(t, result.Signup.ReferredBy) {
		assert.Equal(t, "referrer-1", *result.Signup.ReferredBy)
	}
}

func TestSignupService_Join_UnknownReferralCodeIgnored(t *testing.T) {
	incrementCalled := false

	repo := &MockSignupRepository{
		GetByCodeFunc: func(ctx context.Context, code string) (*models.Signup, error) {
			return nil, models.ErrNotFound
		},
		CreateFunc: echoCreate(),
		IncrementReferralCountFunc: func(ctx context.Context, code string) error {
			incrementCalled = true
			return nil
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	result, err := svc.Join(context.Background(), JoinRequest{
		Email:        "b@x.com",
		Source:       "popup",
		ReferralCode: "deadbeef",
	})

	// Signup proceeds; the unknown code is advisory only.
	assert.NoError(t, err)
	assert.False(t, incrementCalled)
	assert.Nil(t, result.Signup.ReferredBy)
}

func TestSignupService_Join_MalformedReferralCodeIgnored(t *testing.T) {
	lookupCalled := false

	repo := &MockSignupRepository{
		GetByCodeFunc: func(ctx context.Context, code string) (*models.Signup, error) {
			lookupCalled = true
			return nil, models.ErrNotFound
		},
		CreateFunc: echoCreate(),
	}

	svc := newTestSignupService(repo, nil, nil)

	_, err := svc.Join(context.Background(), JoinRequest{
		Email:        "b@x.com",
		Source:       "popup",
		ReferralCode: "<script>",
	})

	assert.NoError(t, err)
	assert.False(t, lookupCalled) // rejected before touching the store
}

func TestSignupService_Join_CodeCollisionRegenerates(t *testing.T) {
	attempts := 0
	codes := make(map[string]bool)

	repo := &MockSignupRepository{
		CreateFunc: func(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
			attempts++
			codes[signup.ReferralCode] = true
			if attempts == 1 {
				return nil, models.ErrDuplicateCode
			}
			signup.ID = "signup-1"
			return signup, nil
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	_, err := svc.Join(context.Background(), JoinRequest{Email: "a@x.com", Source: "popup"})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, codes, 2) // a fresh code per attempt
}

func TestSignupService_Join_CodeGenExhausted(t *testing.T) {
	attempts := 0

	repo := &MockSignupRepository{
		CreateFunc: func(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
			attempts++
			return nil, models.ErrDuplicateCode
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	result, err := svc.Join(context.Background(), JoinRequest{Email: "a@x.com", Source: "popup"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrCodeGenExhausted)
	assert.Equal(t, maxCodeAttempts, attempts)
}

func TestSignupService_Join_DuplicateEmailRaceRecovers(t *testing.T) {
	existing := NewTestSignup("signup-1", "a@x.com", "a1B2c3D4")
	lookups := 0

	repo := &MockSignupRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Signup, error) {
			lookups++
			if lookups == 1 {
				return nil, models.ErrNotFound
			}
			return existing, nil
		},
		CreateFunc: func(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
			return nil, models.ErrDuplicateEmail
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	result, err := svc.Join(context.Background(), JoinRequest{Email: "a@x.com", Source: "popup"})

	assert.NoError(t, err)
	assert.True(t, result.AlreadyJoined)
	assert.Equal(t, "a1B2c3D4", result.Signup.ReferralCode)
}

func TestSignupService_Join_EmailDispatchFailureStillSucceeds(t *testing.T) {
	markNotifiedCalled := false

	repo := &MockSignupRepository{
		CreateFunc: echoCreate(),
		MarkNotifiedFunc: func(ctx context.Context, id string) error {
			markNotifiedCalled = true
			return nil
		},
	}
	email := &MockEmailService{
		SendWaitlistConfirmationFunc: func(ctx context.Context, to, code string, position int64) error {
			return errors.New("ses throttled")
		},
	}

	svc := newTestSignupService(repo, nil, email)

	result, err := svc.Join(context.Background(), JoinRequest{Email: "a@x.com", Source: "popup"})

	assert.NoError(t, err) // signup recorded, dispatch failure is non-fatal
	assert.False(t, result.EmailSent)
	assert.False(t, markNotifiedCalled)
}

func TestSignupService_Join_StoreUnavailable(t *testing.T) {
	repo := &MockSignupRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Signup, error) {
			return nil, models.ErrStoreUnavailable
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	result, err := svc.Join(context.Background(), JoinRequest{Email: "a@x.com", Source: "popup"})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestSignupService_CheckEmail_Exists(t *testing.T) {
	existing := NewTestSignup("signup-1", "a@x.com", "a1B2c3D4")

	repo := &MockSignupRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Signup, error) {
			assert.Equal(t, "a@x.com", email)
			return existing, nil
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	signup, err := svc.CheckEmail(context.Background(), "  A@X.COM ")

	assert.NoError(t, err)
	assert.Equal(t, "signup-1", signup.ID)
}

func TestSignupService_CheckEmail_NotFound(t *testing.T) {
	svc := newTestSignupService(&MockSignupRepository{}, nil, nil)

	signup, err := svc.CheckEmail(context.Background(), "missing@x.com")

	assert.Nil(t, signup)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSignupService_CheckEmail_Invalid(t *testing.T) {
	svc := newTestSignupService(&MockSignupRepository{}, nil, nil)

	_, err := svc.CheckEmail(context.Background(), "nope")

	assert.ErrorIs(t, err, models.ErrInvalidEmail)
}

func TestSignupService_GetReferrer_Found(t *testing.T) {
	referrer := NewTestSignup("referrer-1", "r@x.com", "a1B2c3D4")

	repo := &MockSignupRepository{
		GetByCodeFunc: func(ctx context.Context, code string) (*models.Signup, error) {
			return referrer, nil
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	signup, err := svc.GetReferrer(context.Background(), "a1B2c3D4")

	assert.NoError(t, err)
	assert.Equal(t, "referrer-1", signup.ID)
}

func TestSignupService_GetReferrer_Unknown(t *testing.T) {
	svc := newTestSignupService(&MockSignupRepository{}, nil, nil)

	_, err := svc.GetReferrer(context.Background(), "zzzzzzzz")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSignupService_GetReferrer_Malformed(t *testing.T) {
	lookupCalled := false

	repo := &MockSignupRepository{
		GetByCodeFunc: func(ctx context.Context, code string) (*models.Signup, error) {
			lookupCalled = true
			return nil, models.ErrNotFound
		},
	}

	svc := newTestSignupService(repo, nil, nil)

	_, err := svc.GetReferrer(context.Background(), "../../etc")

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, lookupCalled)
}
