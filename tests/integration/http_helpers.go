package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/maxmove/waitlist-api/internal/database"
	"github.com/maxmove/waitlist-api/internal/handlers"
	middlewareCustom "github.com/maxmove/waitlist-api/internal/middleware"
	"github.com/maxmove/waitlist-api/internal/repositories"
	"github.com/maxmove/waitlist-api/internal/routes"
	"github.com/maxmove/waitlist-api/internal/services"
	pkghttp "github.com/maxmove/waitlist-api/pkg/http"
	pkglogger "github.com/maxmove/waitlist-api/pkg/logger"
)

// SentEmail represents a captured confirmation email
type SentEmail struct {
	To           string
	ReferralCode string
	Position     int64
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	FailNext   bool // next send returns an error, then resets
	mu         sync.Mutex
}

// SendWaitlistConfirmation records the email
func (m *MockEmailService) SendWaitlistConfirmation(ctx context.Context, email, referralCode string, position int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext {
		m.FailNext = false
		return fmt.Errorf("simulated dispatch failure")
	}

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:           email,
		ReferralCode: referralCode,
		Position:     position,
	})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// AllowAllLimiter bypasses rate limiting so tests can submit freely
type AllowAllLimiter struct{}

func (AllowAllLimiter) Check(ctx context.Context, key string) services.RateLimitResult {
	return services.RateLimitResult{Allowed: true, Remaining: 1}
}

// TestServer wraps httptest.Server with the full waiting-list stack on a
// real database and a mocked email service
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	SignupRepo   *repositories.SignupRepository
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	signupRepo := repositories.NewSignupRepository(db)
	emailService := &MockEmailService{}

	signupService := services.NewSignupService(
		signupRepo,
		AllowAllLimiter{},
		emailService,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	waitlistHandler := handlers.NewWaitlistHandler(signupService, &pkghttp.IPConfig{})

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, waitlistHandler, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: 1000, // out of the way for tests
	})

	return &TestServer{
		Server:       httptest.NewServer(router),
		DB:           db,
		EmailService: emailService,
		SignupRepo:   signupRepo,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// PostJSON sends a POST request with a JSON body and decodes the response into out
func (ts *TestServer) PostJSON(path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := http.Post(ts.Server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// GetJSON sends a GET request and decodes the response into out
func (ts *TestServer) GetJSON(path string, out any) (int, error) {
	resp, err := http.Get(ts.Server.URL + path)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}
