package referral

import (
	"crypto/rand"
	"fmt"
)

// CodeLength is the length of generated referral codes. Eight base62
// characters give ~2^47 possible codes; the orchestrator handles the
// residual collision risk by regenerating.
const CodeLength = 8

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generate produces a URL-safe referral code from crypto/rand.
func Generate() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}

	return string(buf), nil
}

// Valid reports whether s has the shape of a generated referral code.
// Used to reject obviously malformed inbound codes before hitting the store.
func Valid(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
