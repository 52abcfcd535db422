package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a waiting-list audit event
type AuditEvent struct {
	EventType string // e.g. "signup_created", "signup_resubmitted", "referral_attributed"
	SignupID  string
	Email     string // masked before logging
	IPAddress string
	Source    string
	Success   bool
	Reason    string
	Metadata  map[string]string
}

// AuditLogger emits structured audit records for signup activity
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSignupEvent logs signup and referral lifecycle events. Emails are
// always masked; raw addresses never reach the log stream.
func (al *AuditLogger) LogSignupEvent(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "waitlist"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.SignupID != "" {
		attrs = append(attrs, slog.String("signup_id", event.SignupID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Source != "" {
		attrs = append(attrs, slog.String("source", event.Source))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}
