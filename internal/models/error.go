package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Signup flow errors
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrDuplicateEmail   = errors.New("email already on the waiting list")
	ErrDuplicateCode    = errors.New("referral code already in use")
	ErrCodeGenExhausted = errors.New("referral code generation exhausted")
	ErrRateLimited      = errors.New("too many signup attempts")

	// Infrastructure errors
	ErrStoreUnavailable = errors.New("signup store unavailable")
)
