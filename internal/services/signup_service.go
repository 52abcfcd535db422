package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/maxmove/waitlist-api/internal/models"
	pkglogger "github.com/maxmove/waitlist-api/pkg/logger"
	"github.com/maxmove/waitlist-api/pkg/referral"
)

// maxCodeAttempts bounds the regenerate-on-collision loop. Collisions in a
// 62^8 space are vanishingly rare; hitting the bound means something else
// is wrong and the request fails with ErrCodeGenExhausted.
const maxCodeAttempts = 5

var validate = validator.New()

// SignupRepository defines the interface for waiting-list data access
type SignupRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Signup, error)
	GetByCode(ctx context.Context, code string) (*models.Signup, error)
	Create(ctx context.Context, signup *models.Signup) (*models.Signup, error)
	IncrementReferralCount(ctx context.Context, code string) error
	Count(ctx context.Context) (int64, error)
	MarkNotified(ctx context.Context, id string) error
}

// RateLimiter decides whether a signup attempt from a client key is allowed
type RateLimiter interface {
	Check(ctx context.Context, key string) RateLimitResult
}

// RateLimitedError carries the window state of a denied attempt so the
// handler can surface Retry-After. Unwraps to models.ErrRateLimited.
type RateLimitedError struct {
	Result RateLimitResult
}

func (e *RateLimitedError) Error() string { return models.ErrRateLimited.Error() }

func (e *RateLimitedError) Unwrap() error { return models.ErrRateLimited }

// JoinRequest is the orchestrator's input for one signup attempt
type JoinRequest struct {
	Email        string
	Source       string
	UTMSource    string
	ReferralCode string // optional inbound code, advisory only
	ClientKey    string // rate-limit key, normally the client IP
}

// JoinResult is the outcome of a successful (or idempotent) signup
type JoinResult struct {
	Signup        *models.Signup
	AlreadyJoined bool  // resubmission of a known email
	Count         int64 // total signups after this request
	EmailSent     bool
}

// SignupService orchestrates the waiting-list flow: validate, rate-check,
// dedupe, generate a referral code, attribute the referral, persist, notify.
type SignupService struct {
	repo    SignupRepository
	limiter RateLimiter
	email   EmailService
	logger  *slog.Logger
	audit   *pkglogger.AuditLogger
}

// NewSignupService creates a new SignupService
func NewSignupService(repo SignupRepository, limiter RateLimiter, email EmailService, logger *slog.Logger, audit *pkglogger.AuditLogger) *SignupService {
	return &SignupService{
		repo:    repo,
		limiter: limiter,
		email:   email,
		logger:  logger,
		audit:   audit,
	}
}

// Join runs one signup attempt through the full pipeline. Resubmitting a
// known email is idempotent: the existing record and its referral code come
// back unchanged, no referral is attributed and no email is re-sent.
func (s *SignupService) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := validate.Var(email, "required,email"); err != nil {
		return nil, models.ErrInvalidEmail
	}

	if result := s.limiter.Check(ctx, req.ClientKey); !result.Allowed {
		s.audit.LogSignupEvent(pkglogger.AuditEvent{
			EventType: "signup_rate_limited",
			Email:     email,
			IPAddress: req.ClientKey,
			Success:   false,
			Reason:    "quota exceeded",
		})
		return nil, &RateLimitedError{Result: result}
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		count := s.countOrZero(ctx)
		s.audit.LogSignupEvent(pkglogger.AuditEvent{
			EventType: "signup_resubmitted",
			SignupID:  existing.ID,
			Email:     email,
			IPAddress: req.ClientKey,
			Success:   true,
		})
		return &JoinResult{Signup: existing, AlreadyJoined: true, Count: count}, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, s.mapStoreError("failed to look up signup", email, err)
	}

	referredBy, inboundCode := s.resolveReferral(ctx, req.ReferralCode, email)

	signup, err := s.createWithFreshCode(ctx, &models.Signup{
		Email:      email,
		Source:     strings.TrimSpace(req.Source),
		UTMSource:  optional(req.UTMSource),
		ReferredBy: referredBy,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			// Lost the race against a concurrent signup of the same
			// email; fall back to the idempotent path.
			return s.recoverExisting(ctx, email, req.ClientKey)
		}
		return nil, err
	}

	if referredBy != nil {
		s.attributeReferral(ctx, inboundCode, signup)
	}

	count := s.countOrZero(ctx)

	emailSent := s.dispatchConfirmation(ctx, signup, count)

	s.audit.LogSignupEvent(pkglogger.AuditEvent{
		EventType: "signup_created",
		SignupID:  signup.ID,
		Email:     email,
		IPAddress: req.ClientKey,
		Source:    signup.Source,
		Success:   true,
	})

	return &JoinResult{Signup: signup, Count: count, EmailSent: emailSent}, nil
}

// CheckEmail reports whether an email is already on the waiting list.
func (s *SignupService) CheckEmail(ctx context.Context, email string) (*models.Signup, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validate.Var(email, "required,email"); err != nil {
		return nil, models.ErrInvalidEmail
	}

	signup, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.mapStoreError("failed to check signup", email, err)
	}

	return signup, nil
}

// GetReferrer returns the signup owning a referral code, for the
// referral-landing display.
func (s *SignupService) GetReferrer(ctx context.Context, code string) (*models.Signup, error) {
	if !referral.Valid(code) {
		return nil, models.ErrNotFound
	}

	signup, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.mapStoreError("failed to look up referral code", "", err)
	}

	return signup, nil
}

// createWithFreshCode inserts the record, regenerating the referral code on
// the rare unique-index collision.
func (s *SignupService) createWithFreshCode(ctx context.Context, signup *models.Signup) (*models.Signup, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := referral.Generate()
		if err != nil {
			s.logger.Error("failed to generate referral code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		signup.ReferralCode = code

		created, err := s.repo.Create(ctx, signup)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, models.ErrDuplicateCode) {
			s.logger.Warn("referral code collision, regenerating",
				slog.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, models.ErrDuplicateEmail) || errors.Is(err, models.ErrStoreUnavailable) {
			return nil, err
		}
		s.logger.Error("failed to insert signup", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Error("referral code generation exhausted", slog.Int("attempts", maxCodeAttempts))
	return nil, models.ErrCodeGenExhausted
}

// resolveReferral looks up an optional inbound code. Unknown or malformed
// codes are ignored; the signup proceeds without attribution.
func (s *SignupService) resolveReferral(ctx context.Context, code, email string) (*string, string) {
	if code == "" {
		return nil, ""
	}
	if !referral.Valid(code) {
		s.logger.Info("ignoring malformed referral code",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		return nil, ""
	}

	referrer, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("ignoring unknown referral code",
				slog.String("email", pkglogger.SanitizedEmail(email)))
		} else {
			s.logger.Warn("referral lookup failed, proceeding without attribution",
				slog.Any("error", err))
		}
		return nil, ""
	}

	return &referrer.ID, code
}

// attributeReferral bumps the referrer's counter after the referred signup
// is durably stored. Best-effort: a failure here never fails the signup.
func (s *SignupService) attributeReferral(ctx context.Context, code string, signup *models.Signup) {
	if err := s.repo.IncrementReferralCount(ctx, code); err != nil {
		s.logger.Warn("failed to increment referral count",
			slog.String("signup_id", signup.ID),
			slog.Any("error", err))
		return
	}

	s.audit.LogSignupEvent(pkglogger.AuditEvent{
		EventType: "referral_attributed",
		SignupID:  signup.ID,
		Success:   true,
	})
}

// dispatchConfirmation sends the confirmation email. The signup is already
// durable, so a dispatch failure is logged and left for the redelivery
// sweep; it never changes the outcome.
func (s *SignupService) dispatchConfirmation(ctx context.Context, signup *models.Signup, position int64) bool {
	if err := s.email.SendWaitlistConfirmation(ctx, signup.Email, signup.ReferralCode, position); err != nil {
		s.logger.Warn("confirmation email dispatch failed, will retry later",
			slog.String("signup_id", signup.ID),
			slog.Any("error", err))
		return false
	}

	if err := s.repo.MarkNotified(ctx, signup.ID); err != nil {
		s.logger.Warn("failed to mark signup as notified",
			slog.String("signup_id", signup.ID),
			slog.Any("error", err))
	}

	return true
}

// recoverExisting handles the duplicate-email race: the other request won
// the insert, so this one returns the stored record idempotently.
func (s *SignupService) recoverExisting(ctx context.Context, email, clientKey string) (*JoinResult, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.mapStoreError("failed to recover concurrent signup", email, err)
	}

	s.audit.LogSignupEvent(pkglogger.AuditEvent{
		EventType: "signup_resubmitted",
		SignupID:  existing.ID,
		Email:     email,
		IPAddress: clientKey,
		Success:   true,
		Reason:    "concurrent insert",
	})

	return &JoinResult{Signup: existing, AlreadyJoined: true, Count: s.countOrZero(ctx)}, nil
}

func (s *SignupService) countOrZero(ctx context.Context) int64 {
	count, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count signups", slog.Any("error", err))
		return 0
	}
	return count
}

func (s *SignupService) mapStoreError(msg, email string, err error) error {
	attrs := []any{slog.Any("error", err)}
	if email != "" {
		attrs = append(attrs, slog.String("email", pkglogger.SanitizedEmail(email)))
	}
	s.logger.Error(msg, attrs...)

	if errors.Is(err, models.ErrStoreUnavailable) {
		return models.ErrStoreUnavailable
	}
	return models.ErrInternalServer
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
