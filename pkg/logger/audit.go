package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent mirrors a security event into the structured log stream, so
// auth decisions remain greppable even when the database event write fails.
type AuditEvent struct {
	EventType string
	Severity  string
	AccountID string
	IPAddress string
	Location  string
	Detail    map[string]string
}

// AuditLogger provides the slog-backed audit mirror.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes one audit line. Warning and critical severities are raised to
// slog warn level so they survive production log filtering.
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Location != "" {
		attrs = append(attrs, slog.String("location", event.Location))
	}
	for key, val := range event.Detail {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if event.Severity == "warning" || event.Severity == "critical" {
		level = slog.LevelWarn
	}

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
