package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nbenslimane/assurid/internal/models"
	pkgauth "github.com/nbenslimane/assurid/pkg/auth"
)

// PasswordService handles password changes, both voluntary and the forced
// rotation the login gate demands. A change always requires the current
// password and a fresh second-factor proof, an emailed code for accounts
// without an enrolled authenticator.
type PasswordService struct {
	accounts AccountRepository
	settings SecuritySettingsRepository
	otp      *OTPService
	events   *EventService
	logger   *slog.Logger
}

// NewPasswordService creates a new PasswordService
func NewPasswordService(
	accounts AccountRepository,
	settings SecuritySettingsRepository,
	otp *OTPService,
	events *EventService,
	logger *slog.Logger,
) *PasswordService {
	return &PasswordService{
		accounts: accounts,
		settings: settings,
		otp:      otp,
		events:   events,
		logger:   logger,
	}
}

// RequestChangeCode emails a one-time code to satisfy the second-factor
// requirement of a change, for accounts without an enrolled authenticator.
func (s *PasswordService) RequestChangeCode(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	return s.otp.SendLoginCode(ctx, account)
}

// Change validates and applies a new password. Every failed strength rule
// is reported to the caller individually, so the portal can show the user
// exactly what is missing rather than a generic rejection.
func (s *PasswordService) Change(ctx context.Context, accountID, currentPassword, newPassword, secondFactorCode string, client models.ClientContext) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		return models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		return models.ErrUnauthorized
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	// Rotation must actually rotate.
	if pkgauth.ComparePassword(account.PasswordHash, newPassword) == nil {
		return &pkgauth.PasswordValidationError{Failed: []string{"must differ from current password"}}
	}

	settings, err := s.settings.Get(ctx, accountID)
	if err != nil {
		return models.ErrInternalServer
	}

	// A change is never accepted on session trust alone: the caller proves
	// freshness with an enrolled authenticator code, or with an emailed
	// one-time code when no authenticator is enrolled.
	if secondFactorCode == "" {
		return models.ErrMFARequired
	}
	switch mfaMode(settings) {
	case models.MFAModeTOTP:
		if err := s.otp.VerifyTOTPCode(ctx, settings, secondFactorCode); err != nil {
			return err
		}
	default:
		if err := s.otp.VerifyEmailCode(ctx, accountID, secondFactorCode); err != nil {
			return err
		}
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return models.ErrInternalServer
	}

	if err := s.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		s.logger.Error("failed to update password hash", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.settings.MarkPasswordChanged(ctx, accountID); err != nil {
		s.logger.Error("failed to mark password changed", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventPasswordChanged, models.SeverityInfo, &accountID, client, nil)

	return nil
}

// IssueTemporaryPassword replaces the account's credential with a generated
// one and arms the forced-change flag, so the temporary value can only be
// used once to reach the rotation screen. Used by administrators for
// recovery.
func (s *PasswordService) IssueTemporaryPassword(ctx context.Context, accountID, actorID string, client models.ClientContext) (string, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotFound
		}
		return "", models.ErrInternalServer
	}

	tempPassword, err := pkgauth.GenerateTemporaryPassword()
	if err != nil {
		return "", models.ErrInternalServer
	}
	hash, err := pkgauth.HashPassword(tempPassword)
	if err != nil {
		return "", models.ErrInternalServer
	}

	if err := s.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return "", models.ErrInternalServer
	}
	if err := s.settings.RequirePasswordChange(ctx, accountID); err != nil {
		return "", models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventPasswordChanged, models.SeverityWarning, &accountID, client, models.EventDetail{
		"reason":   "temporary_password_issued",
		"actor_id": actorID,
	})

	return tempPassword, nil
}
