package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nbenslimane/assurid/internal/models"
)

// BlockedIPRepository defines the interface for denylist storage
type BlockedIPRepository interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
	Block(ctx context.Context, address, reason string, expiresAt *time.Time) (*models.BlockedIP, error)
	Unblock(ctx context.Context, address string) error
	List(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error)
}

// BlocklistInvalidator drops a cached block verdict after a denylist
// change. Nil when no cache is configured.
type BlocklistInvalidator interface {
	Invalidate(ctx context.Context, address string)
}

// AdminService covers the administrative surface: unlocking accounts,
// managing the IP denylist, and role assignments.
type AdminService struct {
	accounts    AccountRepository
	settings    SecuritySettingsRepository
	blockedIPs  BlockedIPRepository
	invalidator BlocklistInvalidator
	events      *EventService
	logger      *slog.Logger
}

// NewAdminService creates a new AdminService. invalidator may be nil.
func NewAdminService(
	accounts AccountRepository,
	settings SecuritySettingsRepository,
	blockedIPs BlockedIPRepository,
	invalidator BlocklistInvalidator,
	events *EventService,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		accounts:    accounts,
		settings:    settings,
		blockedIPs:  blockedIPs,
		invalidator: invalidator,
		events:      events,
		logger:      logger,
	}
}

// UnlockAccount lifts a lockout ahead of its expiry.
func (s *AdminService) UnlockAccount(ctx context.Context, accountID, actorID string, client models.ClientContext) error {
	if err := s.settings.Unlock(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to unlock account", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventAccountUnlocked, models.SeverityInfo, &accountID, client, models.EventDetail{
		"actor_id": actorID,
	})

	return nil
}

// BlockIP adds an address to the denylist. A nil expiry blocks permanently.
func (s *AdminService) BlockIP(ctx context.Context, address, reason string, expiresAt *time.Time, actorID string, client models.ClientContext) (*models.BlockedIP, error) {
	if address == "" {
		return nil, models.ErrBadRequest
	}

	block, err := s.blockedIPs.Block(ctx, address, reason, expiresAt)
	if err != nil {
		s.logger.Error("failed to block IP", slog.String("address", address), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, address)
	}

	s.events.Record(ctx, models.EventIPBlocked, models.SeverityWarning, nil, client, models.EventDetail{
		"address":  address,
		"reason":   reason,
		"actor_id": actorID,
	})

	return block, nil
}

// UnblockIP removes an address from the denylist.
func (s *AdminService) UnblockIP(ctx context.Context, address, actorID string, client models.ClientContext) error {
	if err := s.blockedIPs.Unblock(ctx, address); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, address)
	}

	s.events.Record(ctx, models.EventIPUnblocked, models.SeverityInfo, nil, client, models.EventDetail{
		"address":  address,
		"actor_id": actorID,
	})

	return nil
}

// ListBlockedIPs returns the denylist, newest first.
func (s *AdminService) ListBlockedIPs(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.blockedIPs.List(ctx, limit, offset)
}

// ListAccounts returns accounts for the admin console.
func (s *AdminService) ListAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.accounts.List(ctx, limit, offset)
}

// AssignRole grants a role to an account.
func (s *AdminService) AssignRole(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error {
	if !models.IsValidRole(role) {
		return models.ErrBadRequest
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	if err := s.accounts.AddRole(ctx, accountID, role); err != nil {
		return models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventRoleChanged, models.SeverityInfo, &accountID, client, models.EventDetail{
		"action":   "assigned",
		"role":     role,
		"actor_id": actorID,
	})

	return nil
}

// RevokeRole removes a role from an account. Takes effect on the next
// policy check, not the next token issue.
func (s *AdminService) RevokeRole(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error {
	if err := s.accounts.RemoveRole(ctx, accountID, role); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventRoleChanged, models.SeverityInfo, &accountID, client, models.EventDetail{
		"action":   "revoked",
		"role":     role,
		"actor_id": actorID,
	})

	return nil
}
