package services

import (
	"context"
	"log/slog"

	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/repositories"
	pkglogger "github.com/nbenslimane/assurid/pkg/logger"
)

// SecurityEventRepository defines the interface for audit trail storage
type SecurityEventRepository interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
	List(ctx context.Context, filter repositories.EventFilter, limit, offset int) ([]*models.SecurityEvent, error)
}

// EventService records security events. Recording is deliberately
// infallible from the caller's perspective: a failed append is mirrored to
// the structured log and swallowed, because losing an audit row must never
// abort the login or review that produced it.
type EventService struct {
	repo        SecurityEventRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewEventService creates a new EventService
func NewEventService(repo SecurityEventRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *EventService {
	return &EventService{
		repo:        repo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Record appends an event and mirrors it to the audit log stream.
func (s *EventService) Record(ctx context.Context, eventType, severity string, accountID *string, client models.ClientContext, detail models.EventDetail) {
	event := &models.SecurityEvent{
		EventType: eventType,
		Severity:  severity,
		AccountID: accountID,
		IPAddress: client.IPAddress,
		Location:  client.Location,
		Detail:    detail,
	}

	if err := s.repo.Append(ctx, event); err != nil {
		s.logger.Error("failed to persist security event",
			slog.String("event_type", eventType),
			slog.Any("error", err))
	}

	audit := pkglogger.AuditEvent{
		EventType: eventType,
		Severity:  severity,
		IPAddress: client.IPAddress,
		Location:  client.Location,
		Detail:    make(map[string]string, len(detail)),
	}
	if accountID != nil {
		audit.AccountID = *accountID
	}
	for k, v := range detail {
		if str, ok := v.(string); ok {
			audit.Detail[k] = str
		}
	}
	s.auditLogger.Log(audit)
}

// EventQuery is the listing filter exposed to the admin surface.
type EventQuery struct {
	AccountID string
	EventType string
	Severity  string
	Limit     int
	Offset    int
}

// List returns events newest first, for holders of the security events
// capability.
func (s *EventService) List(ctx context.Context, q EventQuery) ([]*models.SecurityEvent, error) {
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, repositories.EventFilter{
		AccountID: q.AccountID,
		EventType: q.EventType,
		Severity:  q.Severity,
	}, limit, offset)
}
