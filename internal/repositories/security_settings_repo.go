package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nbenslimane/assurid/internal/database"
	"github.com/nbenslimane/assurid/internal/models"
)

// SecuritySettingsRepository owns the per-account security state. Every
// counter mutation is a single conditional UPDATE so concurrent requests
// cannot lose increments to a read-modify-write race.
type SecuritySettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSecuritySettingsRepository(db *database.DB) *SecuritySettingsRepository {
	return &SecuritySettingsRepository{pool: db.Pool}
}

func scanSecuritySettingsRow(scanner rowScanner) (*models.SecuritySettings, error) {
	var s models.SecuritySettings
	var otpCodeHash, lastLoginIP, lastLoginLocation *string

	err := scanner.Scan(
		&s.AccountID, &s.MFAStatus, &s.MFASecretEnc, &s.MFANonce, &s.MFAEnabledAt,
		&otpCodeHash, &s.OTPExpiresAt, &s.OTPAttempts,
		&s.FailedLoginAttempts, &s.LockedUntil,
		&s.PasswordChangedAt, &s.PasswordMustChange,
		&s.LastLoginAt, &lastLoginIP, &lastLoginLocation,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if otpCodeHash != nil {
		s.OTPCodeHash = *otpCodeHash
	}
	if lastLoginIP != nil {
		s.LastLoginIP = *lastLoginIP
	}
	if lastLoginLocation != nil {
		s.LastLoginLocation = *lastLoginLocation
	}

	return &s, nil
}

const securitySettingsColumns = `
	account_id, mfa_status, mfa_secret_enc, mfa_nonce, mfa_enabled_at,
	otp_code_hash, otp_expires_at, otp_attempts,
	failed_login_attempts, locked_until,
	password_changed_at, password_must_change,
	last_login_at, last_login_ip, last_login_location,
	updated_at
`

func (r *SecuritySettingsRepository) Get(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
	query := `SELECT ` + securitySettingsColumns + ` FROM security_settings WHERE account_id = $1`

	return scanSecuritySettingsRow(r.pool.QueryRow(ctx, query, accountID))
}

// RecordFailedLogin atomically increments the failure counter and, when the
// new count reaches the ceiling, arms the lockout window in the same
// statement. Returns the new count and the lockout deadline if one is set.
func (r *SecuritySettingsRepository) RecordFailedLogin(ctx context.Context, accountID string) (int, *time.Time, error) {
	query := `
		UPDATE security_settings
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE locked_until
		    END,
		    updated_at = $4
		WHERE account_id = $1
		RETURNING failed_login_attempts, locked_until
	`

	now := time.Now()
	deadline := now.Add(models.LockoutDuration)

	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, query, accountID, models.FailedLoginCeiling, deadline, now).
		Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}

	return attempts, lockedUntil, nil
}

// RecordLogin clears the failure counter and lockout, and stamps the
// last-login bookkeeping fields.
func (r *SecuritySettingsRepository) RecordLogin(ctx context.Context, accountID, ip, location string) error {
	query := `
		UPDATE security_settings
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_login_at = $2,
		    last_login_ip = $3,
		    last_login_location = $4,
		    updated_at = $2
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID, time.Now(), ip, location)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Unlock clears an active lockout and its counter. Used by the admin
// unlock operation; regular expiry needs no write.
func (r *SecuritySettingsRepository) Unlock(ctx context.Context, accountID string) error {
	query := `
		UPDATE security_settings
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// StoreOTPChallenge installs a fresh email code challenge, superseding any
// previous one and zeroing its attempt counter.
func (r *SecuritySettingsRepository) StoreOTPChallenge(ctx context.Context, accountID, codeHash string, expiresAt time.Time) error {
	query := `
		UPDATE security_settings
		SET otp_code_hash = $2, otp_expires_at = $3, otp_attempts = 0, updated_at = $4
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID, codeHash, expiresAt, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// IncrementOTPAttempts atomically bumps the attempt counter for the live
// challenge and returns the new value.
func (r *SecuritySettingsRepository) IncrementOTPAttempts(ctx context.Context, accountID string) (int, error) {
	query := `
		UPDATE security_settings
		SET otp_attempts = otp_attempts + 1, updated_at = $2
		WHERE account_id = $1
		RETURNING otp_attempts
	`

	var attempts int
	err := r.pool.QueryRow(ctx, query, accountID, time.Now()).Scan(&attempts)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return attempts, nil
}

// ClearOTPChallenge consumes the challenge so the code cannot be replayed.
func (r *SecuritySettingsRepository) ClearOTPChallenge(ctx context.Context, accountID string) error {
	query := `
		UPDATE security_settings
		SET otp_code_hash = NULL, otp_expires_at = NULL, otp_attempts = 0, updated_at = $2
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// BeginMFAEnrollment stores a fresh encrypted seed and moves the account to
// pending, but only from the disabled state. Returns false when the state
// was not disabled, which callers treat as "enrollment already in flight".
func (r *SecuritySettingsRepository) BeginMFAEnrollment(ctx context.Context, accountID string, secretEnc, nonce []byte) (bool, error) {
	query := `
		UPDATE security_settings
		SET mfa_status = $2, mfa_secret_enc = $3, mfa_nonce = $4, updated_at = $5
		WHERE account_id = $1 AND mfa_status = $6
	`

	tag, err := r.pool.Exec(ctx, query,
		accountID, models.MFAPending, secretEnc, nonce, time.Now(), models.MFADisabled,
	)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return tag.RowsAffected() > 0, nil
}

// EnableMFA flips pending to enabled. The state guard means a stray second
// verification cannot re-stamp mfa_enabled_at.
func (r *SecuritySettingsRepository) EnableMFA(ctx context.Context, accountID string) error {
	query := `
		UPDATE security_settings
		SET mfa_status = $2, mfa_enabled_at = $3, updated_at = $3
		WHERE account_id = $1 AND mfa_status = $4
	`

	tag, err := r.pool.Exec(ctx, query, accountID, models.MFAEnabled, time.Now(), models.MFAPending)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStateConflict
	}

	return nil
}

// ResetMFA wipes the seed, any live challenge and its attempt counter, and
// returns the account to disabled, from any state.
func (r *SecuritySettingsRepository) ResetMFA(ctx context.Context, accountID string) error {
	query := `
		UPDATE security_settings
		SET mfa_status = $2, mfa_secret_enc = NULL, mfa_nonce = NULL, mfa_enabled_at = NULL,
		    otp_code_hash = NULL, otp_expires_at = NULL, otp_attempts = 0, updated_at = $3
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID, models.MFADisabled, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// MarkPasswordChanged stamps the rotation clock and drops the forced-change
// flag in one statement.
func (r *SecuritySettingsRepository) MarkPasswordChanged(ctx context.Context, accountID string) error {
	query := `
		UPDATE security_settings
		SET password_changed_at = $2, password_must_change = FALSE, updated_at = $2
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// RequirePasswordChange arms the forced-change flag, e.g. after an admin
// issues a temporary password.
func (r *SecuritySettingsRepository) RequirePasswordChange(ctx context.Context, accountID string) error {
	query := `
		UPDATE security_settings
		SET password_must_change = TRUE, updated_at = $2
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, accountID, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// PurgeExpiredOTPChallenges clears challenge slots whose codes expired
// before the cutoff. Called by the background cleanup loop.
func (r *SecuritySettingsRepository) PurgeExpiredOTPChallenges(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE security_settings
		SET otp_code_hash = NULL, otp_expires_at = NULL, otp_attempts = 0, updated_at = $2
		WHERE otp_expires_at IS NOT NULL AND otp_expires_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, cutoff, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
