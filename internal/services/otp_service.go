package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	pkgauth "github.com/nbenslimane/assurid/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// OTPService owns second-factor mechanics: emailed one-time codes and the
// TOTP enrollment lifecycle. Codes are stored bcrypt-hashed; the attempt
// ceiling is enforced through the repository's atomic increment so every
// concurrent submission is counted exactly once.
type OTPService struct {
	accounts AccountRepository
	settings SecuritySettingsRepository
	totp     *auth.TOTPManager
	email    EmailSender
	events   *EventService
	logger   *slog.Logger
}

// NewOTPService creates a new OTPService
func NewOTPService(
	accounts AccountRepository,
	settings SecuritySettingsRepository,
	totp *auth.TOTPManager,
	email EmailSender,
	events *EventService,
	logger *slog.Logger,
) *OTPService {
	return &OTPService{
		accounts: accounts,
		settings: settings,
		totp:     totp,
		email:    email,
		events:   events,
		logger:   logger,
	}
}

// SendLoginCode issues a fresh emailed code for the account, superseding
// any live challenge. The account never sees more than one valid code.
func (s *OTPService) SendLoginCode(ctx context.Context, account *models.Account) error {
	code, err := pkgauth.GenerateNumericCode(pkgauth.OTPCodeLength)
	if err != nil {
		return models.ErrInternalServer
	}

	// Codes are low-entropy, so a reduced cost keeps verification fast
	// without weakening the 10-minute window materially.
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return models.ErrInternalServer
	}

	expiresAt := time.Now().Add(models.OTPExpiry)
	if err := s.settings.StoreOTPChallenge(ctx, account.ID, string(hash), expiresAt); err != nil {
		s.logger.Error("failed to store OTP challenge", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendLoginCode(ctx, account.Email, code, models.OTPExpiry); err != nil {
		return models.ErrInternalServer
	}

	return nil
}

// VerifyEmailCode checks a submitted code against the live challenge.
// The attempt counter is bumped before the comparison, so once five
// submissions have been burned the challenge is dead even for the right
// code. A correct code consumes the challenge.
func (s *OTPService) VerifyEmailCode(ctx context.Context, accountID, code string) error {
	settings, err := s.settings.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNoChallenge
		}
		return models.ErrInternalServer
	}

	if settings.OTPCodeHash == "" {
		return models.ErrNoChallenge
	}
	if !settings.OTPLive(time.Now()) {
		return models.ErrCodeExpired
	}

	attempts, err := s.settings.IncrementOTPAttempts(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to increment OTP attempts", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if attempts > models.OTPAttemptCeiling {
		return models.ErrAttemptsExceeded
	}

	if bcrypt.CompareHashAndPassword([]byte(settings.OTPCodeHash), []byte(code)) != nil {
		if attempts >= models.OTPAttemptCeiling {
			return models.ErrAttemptsExceeded
		}
		return &models.CodeInvalidError{Remaining: models.OTPAttemptCeiling - attempts}
	}

	if err := s.settings.ClearOTPChallenge(ctx, accountID); err != nil {
		s.logger.Error("failed to consume OTP challenge", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// VerifyTOTPCode checks an authenticator code against the enrolled seed.
// Authenticator submissions share the challenge attempt counter with
// emailed codes: the counter is bumped before the comparison, and a burned
// window rejects even the right code. A success zeroes the counter.
func (s *OTPService) VerifyTOTPCode(ctx context.Context, settings *models.SecuritySettings, code string) error {
	if len(settings.MFASecretEnc) == 0 {
		return models.ErrNoChallenge
	}

	attempts, err := s.settings.IncrementOTPAttempts(ctx, settings.AccountID)
	if err != nil {
		s.logger.Error("failed to increment OTP attempts", slog.String("account_id", settings.AccountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if attempts > models.OTPAttemptCeiling {
		return models.ErrAttemptsExceeded
	}

	valid, err := s.totp.ValidateCode(settings.MFASecretEnc, settings.MFANonce, code)
	if err != nil {
		s.logger.Error("TOTP validation failed", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !valid {
		if attempts >= models.OTPAttemptCeiling {
			return models.ErrAttemptsExceeded
		}
		return &models.CodeInvalidError{Remaining: models.OTPAttemptCeiling - attempts}
	}

	if err := s.settings.ClearOTPChallenge(ctx, settings.AccountID); err != nil {
		s.logger.Error("failed to reset OTP attempt counter", slog.String("account_id", settings.AccountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// BeginTOTPEnrollment starts (or resumes) enrollment. Calling it again
// while an enrollment is pending returns the same seed, so a user who
// closed the QR page does not end up with a rotated secret their
// authenticator no longer matches.
func (s *OTPService) BeginTOTPEnrollment(ctx context.Context, accountID string) (*auth.Enrollment, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	settings, err := s.settings.Get(ctx, accountID)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	if settings.MFAActive() {
		return nil, models.ErrStateConflict
	}

	if settings.MFAStatus == models.MFAPending && len(settings.MFASecretEnc) > 0 {
		enrollment, err := s.totp.EnrollmentFromSecret(settings.MFASecretEnc, settings.MFANonce, account.Email)
		if err != nil {
			s.logger.Error("failed to rebuild enrollment", slog.String("account_id", accountID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return enrollment, nil
	}

	encrypted, nonce, enrollment, err := s.totp.GenerateEnrollment(account.Email)
	if err != nil {
		s.logger.Error("failed to generate enrollment", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	started, err := s.settings.BeginMFAEnrollment(ctx, accountID, encrypted, nonce)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if !started {
		// Lost a race with a concurrent begin: surface whatever seed won.
		current, err := s.settings.Get(ctx, accountID)
		if err != nil || len(current.MFASecretEnc) == 0 {
			return nil, models.ErrInternalServer
		}
		enrollment, err = s.totp.EnrollmentFromSecret(current.MFASecretEnc, current.MFANonce, account.Email)
		if err != nil {
			return nil, models.ErrInternalServer
		}
	}

	return enrollment, nil
}

// ConfirmTOTPEnrollment proves the user's authenticator holds the pending
// seed and activates MFA.
func (s *OTPService) ConfirmTOTPEnrollment(ctx context.Context, accountID, code string, client models.ClientContext) error {
	settings, err := s.settings.Get(ctx, accountID)
	if err != nil {
		return models.ErrInternalServer
	}

	if settings.MFAStatus != models.MFAPending || len(settings.MFASecretEnc) == 0 {
		return models.ErrStateConflict
	}

	attempts, err := s.settings.IncrementOTPAttempts(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to increment OTP attempts", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if attempts > models.OTPAttemptCeiling {
		return models.ErrAttemptsExceeded
	}

	valid, err := s.totp.ValidateCode(settings.MFASecretEnc, settings.MFANonce, code)
	if err != nil {
		return models.ErrInternalServer
	}
	if !valid {
		if attempts >= models.OTPAttemptCeiling {
			// The pending seed is treated as compromised after five wrong
			// guesses: wipe it so the next enrollment starts from a fresh
			// secret.
			if err := s.settings.ResetMFA(ctx, accountID); err != nil {
				s.logger.Error("failed to abandon exhausted enrollment", slog.String("account_id", accountID), slog.Any("error", err))
			}
			s.events.Record(ctx, models.EventMFAFailure, models.SeverityWarning, &accountID, client, models.EventDetail{
				"reason": "enrollment_attempts_exhausted",
			})
			return models.ErrAttemptsExceeded
		}
		return &models.CodeInvalidError{Remaining: models.OTPAttemptCeiling - attempts}
	}

	if err := s.settings.EnableMFA(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return models.ErrStateConflict
		}
		return models.ErrInternalServer
	}
	if err := s.settings.ClearOTPChallenge(ctx, accountID); err != nil {
		s.logger.Error("failed to reset OTP attempt counter", slog.String("account_id", accountID), slog.Any("error", err))
	}

	s.events.Record(ctx, models.EventMFAEnabled, models.SeverityInfo, &accountID, client, nil)

	return nil
}

// ResetMFA wipes the seed and disables the second factor. actorID is the
// account that asked: the user themselves or an administrator.
func (s *OTPService) ResetMFA(ctx context.Context, accountID, actorID string, client models.ClientContext) error {
	if err := s.settings.ResetMFA(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventMFADisabled, models.SeverityWarning, &accountID, client, models.EventDetail{
		"actor_id": actorID,
	})

	return nil
}
