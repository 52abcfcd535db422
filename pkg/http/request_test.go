package http

import (
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP_RemoteAddrFallback(t *testing.T) {
	req := httptest.NewRequest("POST", "/waiting-list", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	if got := ExtractClientIP(req, nil); got != "203.0.113.7" {
		t.Errorf("got %q, want 203.0.113.7", got)
	}
}

func TestExtractClientIP_IgnoresHeadersFromUntrustedSource(t *testing.T) {
	req := httptest.NewRequest("POST", "/waiting-list", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")

	config := &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	if got := ExtractClientIP(req, config); got != "203.0.113.7" {
		t.Errorf("spoofed header honored: got %q", got)
	}
}

func TestExtractClientIP_HonorsForwardedForFromTrustedProxy(t *testing.T) {
	req := httptest.NewRequest("POST", "/waiting-list", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.5")

	config := &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	if got := ExtractClientIP(req, config); got != "198.51.100.9" {
		t.Errorf("got %q, want 198.51.100.9", got)
	}
}

func TestExtractClientIP_FallsBackToRealIP(t *testing.T) {
	req := httptest.NewRequest("POST", "/waiting-list", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Real-IP", "198.51.100.10")

	config := &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	if got := ExtractClientIP(req, config); got != "198.51.100.10" {
		t.Errorf("got %q, want 198.51.100.10", got)
	}
}

func TestExtractClientIP_SkipsInvalidForwardedEntries(t *testing.T) {
	req := httptest.NewRequest("POST", "/waiting-list", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Forwarded-For", "not-an-ip, 198.51.100.11")

	config := &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	if got := ExtractClientIP(req, config); got != "198.51.100.11" {
		t.Errorf("got %q, want 198.51.100.11", got)
	}
}
