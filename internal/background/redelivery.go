package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/maxmove/waitlist-api/internal/models"
	"github.com/maxmove/waitlist-api/internal/services"
)

// UnnotifiedLister is the repository surface the redelivery sweep needs
type UnnotifiedLister interface {
	ListUnnotified(ctx context.Context, gracePeriod time.Duration, limit int) ([]*models.Signup, error)
	Count(ctx context.Context) (int64, error)
	MarkNotified(ctx context.Context, id string) error
}

// RedeliveryManager periodically retries confirmation emails for signups
// whose initial dispatch failed. Signups stay durable regardless of email
// outcome, so this sweep is the only retry mechanism.
type RedeliveryManager struct {
	repo     UnnotifiedLister
	email    services.EmailService
	logger   *slog.Logger
	interval time.Duration
	batch    int
	stopCh   chan struct{}
}

// NewRedeliveryManager creates a new redelivery manager
func NewRedeliveryManager(
	repo UnnotifiedLister,
	email services.EmailService,
	logger *slog.Logger,
	interval time.Duration,
	batch int,
) *RedeliveryManager {
	return &RedeliveryManager{
		repo:     repo,
		email:    email,
		logger:   logger,
		interval: interval,
		batch:    batch,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic redelivery task
func (rm *RedeliveryManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.runSweep(ctx)
		case <-rm.stopCh:
			rm.logger.Info("redelivery manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("redelivery manager context cancelled")
			return
		}
	}
}

// runSweep retries confirmation emails for a batch of unnotified signups.
// The grace period equals the sweep interval so fresh signups whose first
// dispatch is still in flight are not picked up.
func (rm *RedeliveryManager) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	signups, err := rm.repo.ListUnnotified(sweepCtx, rm.interval, rm.batch)
	if err != nil {
		rm.logger.Error("failed to list unnotified signups", slog.Any("error", err))
		return
	}
	if len(signups) == 0 {
		return
	}

	position, err := rm.repo.Count(sweepCtx)
	if err != nil {
		rm.logger.Error("failed to count signups for redelivery", slog.Any("error", err))
		return
	}

	delivered := 0
	for _, signup := range signups {
		if err := rm.email.SendWaitlistConfirmation(sweepCtx, signup.Email, signup.ReferralCode, position); err != nil {
			rm.logger.Warn("confirmation redelivery failed",
				slog.String("signup_id", signup.ID),
				slog.Any("error", err))
			continue
		}
		if err := rm.repo.MarkNotified(sweepCtx, signup.ID); err != nil {
			rm.logger.Warn("failed to mark signup as notified",
				slog.String("signup_id", signup.ID),
				slog.Any("error", err))
			continue
		}
		delivered++
	}

	rm.logger.Info("confirmation redelivery sweep completed",
		slog.Int("pending", len(signups)),
		slog.Int("delivered", delivered))
}

// Stop signals the redelivery manager to stop
func (rm *RedeliveryManager) Stop() {
	close(rm.stopCh)
}
