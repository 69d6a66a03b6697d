package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	pkgauth "github.com/nbenslimane/assurid/pkg/auth"
	pkglogger "github.com/nbenslimane/assurid/pkg/logger"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	Create(ctx context.Context, account *models.Account, mustChangePassword bool) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	AddRole(ctx context.Context, id, role string) error
	RemoveRole(ctx context.Context, id, role string) error
}

// SecuritySettingsRepository defines the interface for per-account security
// state, including the atomic counter operations.
type SecuritySettingsRepository interface {
	Get(ctx context.Context, accountID string) (*models.SecuritySettings, error)
	RecordFailedLogin(ctx context.Context, accountID string) (int, *time.Time, error)
	RecordLogin(ctx context.Context, accountID, ip, location string) error
	Unlock(ctx context.Context, accountID string) error
	StoreOTPChallenge(ctx context.Context, accountID, codeHash string, expiresAt time.Time) error
	IncrementOTPAttempts(ctx context.Context, accountID string) (int, error)
	ClearOTPChallenge(ctx context.Context, accountID string) error
	BeginMFAEnrollment(ctx context.Context, accountID string, secretEnc, nonce []byte) (bool, error)
	EnableMFA(ctx context.Context, accountID string) error
	ResetMFA(ctx context.Context, accountID string) error
	MarkPasswordChanged(ctx context.Context, accountID string) error
	RequirePasswordChange(ctx context.Context, accountID string) error
}

// BlocklistChecker answers the pre-credential IP check. Satisfied by the
// repository directly or by the Redis read-through cache.
type BlocklistChecker interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
}

// LoginService runs the login sequence: IP pre-check, credential check,
// lockout accounting, the forced-rotation gate, the MFA gate, and finally
// the session grant. The gates are ordered so an expired password is dealt
// with before a second factor is ever requested.
type LoginService struct {
	accounts AccountRepository
	settings SecuritySettingsRepository
	blocked  BlocklistChecker
	tm       *auth.TokenManager
	otp      *OTPService
	events   *EventService
	logger   *slog.Logger
}

// NewLoginService creates a new LoginService
func NewLoginService(
	accounts AccountRepository,
	settings SecuritySettingsRepository,
	blocked BlocklistChecker,
	tm *auth.TokenManager,
	otp *OTPService,
	events *EventService,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		accounts: accounts,
		settings: settings,
		blocked:  blocked,
		tm:       tm,
		otp:      otp,
		events:   events,
		logger:   logger,
	}
}

// Login runs the full sequence for an email/password pair. The returned
// outcome is either a granted session or a challenge (MFA, forced password
// change) carrying a scoped token for the follow-up call.
func (s *LoginService) Login(ctx context.Context, email, password string, client models.ClientContext) (*models.LoginOutcome, error) {
	// The IP verdict comes before credentials are ever examined, so a
	// blocked address learns nothing about which emails exist.
	blocked, err := s.blocked.IsBlocked(ctx, client.IPAddress)
	if err != nil {
		s.logger.Error("blocklist check failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if blocked {
		s.events.Record(ctx, models.EventIPBlocked, models.SeverityWarning, nil, client, models.EventDetail{
			"reason": "login_from_blocked_ip",
		})
		return nil, models.ErrIPBlocked
	}

	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		return nil, models.ErrUnauthorized
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a hash comparison so an unknown email costs the
			// same as a wrong password.
			_ = pkgauth.ComparePassword("$2a$12$000000000000000000000uGyUvPzikwwVUJLZSbZmGqX2ZyXBdY6i", password)
			s.events.Record(ctx, models.EventLoginFailure, models.SeverityInfo, nil, client, models.EventDetail{
				"reason": "unknown_email",
				"email":  pkglogger.SanitizedEmail(email),
			})
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	settings, err := s.settings.Get(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to get security settings", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()

	if settings.Locked(now) {
		s.events.Record(ctx, models.EventLoginFailure, models.SeverityWarning, &account.ID, client, models.EventDetail{
			"reason":       "account_locked",
			"locked_until": settings.LockedUntil.UTC().Format(time.RFC3339),
		})
		return nil, models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, s.recordBadPassword(ctx, account, client)
	}

	// Gate 1: forced rotation. Checked before MFA so a user with an
	// expired password is not asked for a code they may lose access to
	// mid-flow.
	if settings.RotationDue(now, models.PasswordRotationInterval) {
		token, err := s.tm.GeneratePasswordChangeToken(account.ID, account.Email)
		if err != nil {
			s.logger.Error("failed to generate password change token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return &models.LoginOutcome{
			Status:         models.LoginPasswordChangeRequired,
			ChallengeToken: token,
		}, nil
	}

	// Gate 2: second factor.
	if settings.MFAActive() {
		// Each challenge token opens a fresh attempt window: email mode
		// zeroes the counter through the newly stored code, TOTP mode
		// explicitly.
		mode := mfaMode(settings)
		if mode == models.MFAModeEmail {
			if err := s.otp.SendLoginCode(ctx, account); err != nil {
				s.logger.Error("failed to send login code", slog.String("account_id", account.ID), slog.Any("error", err))
				return nil, models.ErrInternalServer
			}
		} else if err := s.settings.ClearOTPChallenge(ctx, account.ID); err != nil {
			s.logger.Error("failed to reset OTP attempt counter", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		token, err := s.tm.GenerateMFAToken(account.ID, account.Email)
		if err != nil {
			s.logger.Error("failed to generate MFA token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return &models.LoginOutcome{
			Status:         models.LoginMFARequired,
			ChallengeToken: token,
			MFAMode:        mode,
		}, nil
	}

	return s.grant(ctx, account, client, false)
}

// VerifyMFA completes a login withheld at the MFA gate. The challenge token
// proves the password already passed; the code proves the second factor.
func (s *LoginService) VerifyMFA(ctx context.Context, challengeToken, code string, client models.ClientContext) (*models.LoginOutcome, error) {
	claims, err := s.tm.ValidateTokenOfType(challengeToken, models.TokenTypeMFA)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, models.ErrInternalServer
	}

	settings, err := s.settings.Get(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to get security settings", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if settings.Locked(time.Now()) {
		return nil, models.ErrAccountLocked
	}

	switch mfaMode(settings) {
	case models.MFAModeTOTP:
		if err := s.otp.VerifyTOTPCode(ctx, settings, code); err != nil {
			s.events.Record(ctx, models.EventMFAFailure, models.SeverityWarning, &account.ID, client, models.EventDetail{
				"mode": models.MFAModeTOTP,
			})
			return nil, err
		}
	default:
		if err := s.otp.VerifyEmailCode(ctx, account.ID, code); err != nil {
			s.events.Record(ctx, models.EventMFAFailure, models.SeverityWarning, &account.ID, client, models.EventDetail{
				"mode": models.MFAModeEmail,
			})
			return nil, err
		}
	}

	return s.grant(ctx, account, client, true)
}

// Refresh exchanges a refresh token for a new token pair.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*models.LoginOutcome, error) {
	claims, err := s.tm.ValidateTokenOfType(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(account.ID, account.Email)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	newRefreshToken, err := s.tm.GenerateRefreshToken(account.ID, account.Email)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	return &models.LoginOutcome{
		Status:       models.LoginGranted,
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

func (s *LoginService) recordBadPassword(ctx context.Context, account *models.Account, client models.ClientContext) error {
	attempts, lockedUntil, err := s.settings.RecordFailedLogin(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventLoginFailure, models.SeverityInfo, &account.ID, client, models.EventDetail{
		"reason":   "invalid_credentials",
		"attempts": attempts,
	})

	if attempts >= models.FailedLoginCeiling && lockedUntil != nil {
		s.events.Record(ctx, models.EventAccountLocked, models.SeverityCritical, &account.ID, client, models.EventDetail{
			"locked_until": lockedUntil.UTC().Format(time.RFC3339),
		})
		return models.ErrAccountLocked
	}

	return models.ErrUnauthorized
}

func (s *LoginService) grant(ctx context.Context, account *models.Account, client models.ClientContext, viaMFA bool) (*models.LoginOutcome, error) {
	if err := s.settings.RecordLogin(ctx, account.ID, client.IPAddress, client.Location); err != nil {
		s.logger.Error("failed to record login", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(account.ID, account.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	refreshToken, err := s.tm.GenerateRefreshToken(account.ID, account.Email)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventLoginSuccess, models.SeverityInfo, &account.ID, client, models.EventDetail{
		"mfa": viaMFA,
	})

	return &models.LoginOutcome{
		Status:       models.LoginGranted,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// mfaMode picks the second-factor mechanism: TOTP once a seed is enrolled,
// otherwise an emailed code.
func mfaMode(settings *models.SecuritySettings) string {
	if len(settings.MFASecretEnc) > 0 && settings.MFAStatus != models.MFAPending {
		return models.MFAModeTOTP
	}
	return models.MFAModeEmail
}
