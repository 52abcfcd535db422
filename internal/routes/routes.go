package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/maxmove/waitlist-api/internal/handlers"
	"github.com/maxmove/waitlist-api/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	waitlistHandler *handlers.WaitlistHandler,
	burstLimit middleware.RateLimitConfig,
) {
	// All endpoints are public; the burst guard keeps abusive clients off
	// the database before the per-key signup quota even runs.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(burstLimit))

		r.Post("/waiting-list", waitlistHandler.Join)
		r.Get("/waiting-list/check/{email}", waitlistHandler.CheckEmail)
		r.Get("/waiting-list/referrals/{referral_code}", waitlistHandler.GetReferrer)
	})
}
