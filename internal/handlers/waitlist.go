package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxmove/waitlist-api/internal/models"
	"github.com/maxmove/waitlist-api/internal/services"
	pkghttp "github.com/maxmove/waitlist-api/pkg/http"
	pkglogger "github.com/maxmove/waitlist-api/pkg/logger"
)

// WaitlistService defines the interface for waiting-list business logic
type WaitlistService interface {
	Join(ctx context.Context, req services.JoinRequest) (*services.JoinResult, error)
	CheckEmail(ctx context.Context, email string) (*models.Signup, error)
	GetReferrer(ctx context.Context, code string) (*models.Signup, error)
}

// WaitlistHandler handles waiting-list HTTP requests
type WaitlistHandler struct {
	service  WaitlistService
	ipConfig *pkghttp.IPConfig
}

// NewWaitlistHandler creates a new WaitlistHandler
func NewWaitlistHandler(service WaitlistService, ipConfig *pkghttp.IPConfig) *WaitlistHandler {
	return &WaitlistHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request/Response DTOs

// JoinRequest represents the request body for joining the waiting list
type JoinRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Source       string `json:"source" validate:"omitempty,max=64"`
	UTMSource    string `json:"utm_source" validate:"omitempty,max=64"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=32"`
}

// SignupResponse represents a signup record in HTTP responses
type SignupResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	ReferralCode string `json:"referral_code"`
	CreatedAt    string `json:"created_at"`
}

// JoinResponse represents the response body for a signup
type JoinResponse struct {
	Message       string          `json:"message"`
	Data          *SignupResponse `json:"data"`
	Count         int64           `json:"count"`
	AlreadyJoined bool            `json:"already_joined"`
}

// CheckEmailData is the minimal record shape for the existence check. The
// referral code is deliberately absent: the check endpoint is queryable by
// anyone who knows an email, and codes belong to their owners.
type CheckEmailData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CheckEmailResponse represents the response for an email existence check
type CheckEmailResponse struct {
	Exists bool            `json:"exists"`
	Data   *CheckEmailData `json:"data,omitempty"`
}

// ReferrerResponse represents the public summary of a referrer, shown on
// the referral landing page. The email is masked.
type ReferrerResponse struct {
	ReferralCode  string `json:"referral_code"`
	ReferralCount int    `json:"referral_count"`
	Email         string `json:"email"`
	JoinedAt      string `json:"joined_at"`
}

func signupModelToResponse(signup *models.Signup) *SignupResponse {
	return &SignupResponse{
		ID:           signup.ID,
		Email:        signup.Email,
		ReferralCode: signup.ReferralCode,
		CreatedAt:    signup.CreatedAt.Format(time.RFC3339),
	}
}

// Join adds an email to the waiting list
//
// @Summary Join the waiting list
// @Accept json
// @Param request body JoinRequest true "Signup request"
// @Produce json
// @Success 200 {object} JoinResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /waiting-list [post]
func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Join(r.Context(), services.JoinRequest{
		Email:        req.Email,
		Source:       req.Source,
		UTMSource:    req.UTMSource,
		ReferralCode: req.ReferralCode,
		ClientKey:    pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		h.writeJoinError(w, err)
		return
	}

	message := "You're on the waiting list!"
	switch {
	case result.AlreadyJoined:
		message = "You're already on the waiting list."
	case !result.EmailSent:
		message = "You're on the waiting list! Your confirmation email may take a little longer to arrive."
	}

	writeJSON(w, http.StatusOK, JoinResponse{
		Message:       message,
		Data:          signupModelToResponse(result.Signup),
		Count:         result.Count,
		AlreadyJoined: result.AlreadyJoined,
	})
}

// CheckEmail reports whether an email is already on the waiting list
//
// @Summary Check email registration
// @Param email path string true "Email address"
// @Produce json
// @Success 200 {object} CheckEmailResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /waiting-list/check/{email} [get]
func (h *WaitlistHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "Email is required")
		return
	}

	signup, err := h.service.CheckEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusOK, CheckEmailResponse{Exists: false})
			return
		}
		if errors.Is(err, models.ErrInvalidEmail) {
			pkghttp.WriteBadRequest(w, "Invalid email address")
			return
		}
		h.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckEmailResponse{
		Exists: true,
		Data:   &CheckEmailData{ID: signup.ID, Email: signup.Email},
	})
}

// GetReferrer returns the masked summary of the signup owning a referral code
//
// @Summary Look up a referral code
// @Param referral_code path string true "Referral code"
// @Produce json
// @Success 200 {object} ReferrerResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /waiting-list/referrals/{referral_code} [get]
func (h *WaitlistHandler) GetReferrer(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "referral_code")
	if code == "" {
		pkghttp.WriteBadRequest(w, "Referral code is required")
		return
	}

	signup, err := h.service.GetReferrer(r.Context(), code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Referral code not found")
			return
		}
		h.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReferrerResponse{
		ReferralCode:  signup.ReferralCode,
		ReferralCount: signup.ReferralCount,
		Email:         pkglogger.SanitizedEmail(signup.Email),
		JoinedAt:      signup.CreatedAt.Format(time.RFC3339),
	})
}

func (h *WaitlistHandler) writeJoinError(w http.ResponseWriter, err error) {
	var rle *services.RateLimitedError
	if errors.As(err, &rle) {
		retryAfter := int(time.Until(rle.Result.ResetAt).Seconds())
		pkghttp.WriteTooManyRequests(w, "Too many signup attempts, please try again later", retryAfter)
		return
	}

	switch {
	case errors.Is(err, models.ErrInvalidEmail):
		pkghttp.WriteBadRequest(w, "Invalid email address")
	case errors.Is(err, models.ErrCodeGenExhausted):
		pkghttp.WriteInternalError(w, "Could not complete signup, please try again")
	default:
		h.writeStoreError(w, err)
	}
}

func (h *WaitlistHandler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrStoreUnavailable) {
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable, please try again")
		return
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
