package models

import (
	"time"
)

// Signup is one waiting-list entry. Email and referral code are unique
// across all records; uniqueness is enforced by database indexes, not by
// application-level checks.
type Signup struct {
	ID            string
	Email         string // stored lowercased
	ReferralCode  string
	ReferralCount int
	Source        string     // signup origin, e.g. "popup", "footer"
	UTMSource     *string    // optional attribution tag
	ReferredBy    *string    // id of the referring signup, if a valid code was supplied
	NotifiedAt    *time.Time // when the confirmation email was sent
	CreatedAt     time.Time
}
