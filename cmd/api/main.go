package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maxmove/waitlist-api/internal/background"
	"github.com/maxmove/waitlist-api/internal/cache"
	"github.com/maxmove/waitlist-api/internal/config"
	"github.com/maxmove/waitlist-api/internal/database"
	"github.com/maxmove/waitlist-api/internal/handlers"
	middlewareCustom "github.com/maxmove/waitlist-api/internal/middleware"
	"github.com/maxmove/waitlist-api/internal/repositories"
	"github.com/maxmove/waitlist-api/internal/routes"
	"github.com/maxmove/waitlist-api/internal/services"
	pkghttp "github.com/maxmove/waitlist-api/pkg/http"
	pkglogger "github.com/maxmove/waitlist-api/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Redis backs the signup rate limiter. Unreachable Redis is non-fatal;
	// the limiter fails open.
	redisClient := cache.NewClient(&cfg.Redis, logger)
	defer redisClient.Close()

	// Initialize repositories
	signupRepo := repositories.NewSignupRepository(db)

	// Audit logging
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Signup quota limiter (sliding window over Redis)
	rateLimitService := services.NewRateLimitService(redisClient, services.RateLimitConfig{
		Quota:  cfg.RateLimit.SignupQuota,
		Window: cfg.RateLimit.SignupWindow,
	}, logger)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.ReferralURLBase,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	signupService := services.NewSignupService(signupRepo, rateLimitService, emailService, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	waitlistHandler := handlers.NewWaitlistHandler(signupService, ipConfig)

	// Confirmation email redelivery sweep
	redeliveryManager := background.NewRedeliveryManager(
		signupRepo,
		emailService,
		logger,
		cfg.Email.RedeliveryInterval,
		cfg.Email.RedeliveryBatch,
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, waitlistHandler, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.BurstPerMinute,
	})

	// Health check. Redis being down does not make the service unhealthy
	// because signups keep working without it.
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		redisStatus := "up"
		if err := redisClient.HealthCheck(ctx); err != nil {
			redisStatus = "down"
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up","redis":"` + redisStatus + `"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start redelivery task
	redeliveryCtx, redeliveryCancel := context.WithCancel(context.Background())
	defer redeliveryCancel()

	go redeliveryManager.Start(redeliveryCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	redeliveryCancel()
	redeliveryManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
