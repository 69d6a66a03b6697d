package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nbenslimane/assurid/internal/models"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestOTPService_SendLoginCode_StoresHashedCode(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")

	var storedHash string
	var storedExpiry time.Time
	env.settings.StoreOTPChallengeFunc = func(ctx context.Context, accountID, codeHash string, expiresAt time.Time) error {
		storedHash = codeHash
		storedExpiry = expiresAt
		return nil
	}

	err := env.otp.SendLoginCode(context.Background(), account)
	require.NoError(t, err)

	sentCode := env.email.LoginCodes[account.Email]
	require.Len(t, sentCode, 6)

	// The stored value is a hash of the sent code, never the code itself.
	assert.NotEqual(t, sentCode, storedHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(sentCode)))
	assert.WithinDuration(t, time.Now().Add(models.OTPExpiry), storedExpiry, 5*time.Second)
}

func TestOTPService_VerifyEmailCode_ConsumesOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	expires := time.Now().Add(5 * time.Minute)
	settings := freshSettings()
	settings.OTPCodeHash = hashFor(t, "654321")
	settings.OTPExpiresAt = &expires
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	consumed := false
	env.settings.ClearOTPChallengeFunc = func(ctx context.Context, accountID string) error {
		consumed = true
		return nil
	}

	err := env.otp.VerifyEmailCode(context.Background(), "acct-1", "654321")

	assert.NoError(t, err)
	assert.True(t, consumed)
}

func TestOTPService_VerifyEmailCode_NoChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return freshSettings(), nil
	}

	err := env.otp.VerifyEmailCode(context.Background(), "acct-1", "654321")

	assert.ErrorIs(t, err, models.ErrNoChallenge)
}

func TestOTPService_VerifyEmailCode_Expired(t *testing.T) {
	env := newTestEnv(t)
	expired := time.Now().Add(-time.Minute)
	settings := freshSettings()
	settings.OTPCodeHash = hashFor(t, "654321")
	settings.OTPExpiresAt = &expired
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	err := env.otp.VerifyEmailCode(context.Background(), "acct-1", "654321")

	assert.ErrorIs(t, err, models.ErrCodeExpired)
}

func TestOTPService_VerifyEmailCode_RemainingAttemptsCountDown(t *testing.T) {
	env := newTestEnv(t)
	expires := time.Now().Add(5 * time.Minute)
	settings := freshSettings()
	settings.OTPCodeHash = hashFor(t, "654321")
	settings.OTPExpiresAt = &expires
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	attempts := 0
	env.settings.IncrementOTPAttemptsFunc = func(ctx context.Context, accountID string) (int, error) {
		attempts++
		return attempts, nil
	}

	// Submissions 3 and 4 report 2 then 1 remaining; the 5th burns the
	// challenge entirely.
	for i := 0; i < 2; i++ {
		err := env.otp.VerifyEmailCode(context.Background(), "acct-1", "000000")
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
	}

	err := env.otp.VerifyEmailCode(context.Background(), "acct-1", "000000")
	var invalid *models.CodeInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 2, invalid.Remaining)

	err = env.otp.VerifyEmailCode(context.Background(), "acct-1", "000000")
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 1, invalid.Remaining)

	err = env.otp.VerifyEmailCode(context.Background(), "acct-1", "000000")
	assert.ErrorIs(t, err, models.ErrAttemptsExceeded)
}

func TestOTPService_VerifyEmailCode_CorrectCodeAfterExhaustion(t *testing.T) {
	env := newTestEnv(t)
	expires := time.Now().Add(5 * time.Minute)
	settings := freshSettings()
	settings.OTPCodeHash = hashFor(t, "654321")
	settings.OTPExpiresAt = &expires
	settings.OTPAttempts = models.OTPAttemptCeiling
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}
	env.settings.IncrementOTPAttemptsFunc = func(ctx context.Context, accountID string) (int, error) {
		return models.OTPAttemptCeiling + 1, nil
	}

	// Five wrong submissions already burned the challenge: the right code
	// is dead too.
	err := env.otp.VerifyEmailCode(context.Background(), "acct-1", "654321")

	assert.ErrorIs(t, err, models.ErrAttemptsExceeded)
}

func TestOTPService_VerifyTOTPCode_AttemptCeiling(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")

	encrypted, nonce, enrollment, err := env.totp.GenerateEnrollment(account.Email)
	require.NoError(t, err)

	settings := freshSettings()
	settings.MFAStatus = models.MFAEnabled
	settings.MFASecretEnc = encrypted
	settings.MFANonce = nonce

	attempts := 0
	env.settings.IncrementOTPAttemptsFunc = func(ctx context.Context, accountID string) (int, error) {
		attempts++
		return attempts, nil
	}

	for i := 0; i < models.OTPAttemptCeiling-1; i++ {
		err := env.otp.VerifyTOTPCode(context.Background(), settings, "000000")
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
	}

	err = env.otp.VerifyTOTPCode(context.Background(), settings, "000000")
	assert.ErrorIs(t, err, models.ErrAttemptsExceeded)

	// A burned window rejects the right code too.
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	err = env.otp.VerifyTOTPCode(context.Background(), settings, code)
	assert.ErrorIs(t, err, models.ErrAttemptsExceeded)
	assert.Equal(t, models.OTPAttemptCeiling+1, attempts)
}

func TestOTPService_VerifyTOTPCode_ResetsCounterOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")

	encrypted, nonce, enrollment, err := env.totp.GenerateEnrollment(account.Email)
	require.NoError(t, err)

	settings := freshSettings()
	settings.MFAStatus = models.MFAEnabled
	settings.MFASecretEnc = encrypted
	settings.MFANonce = nonce

	cleared := false
	env.settings.ClearOTPChallengeFunc = func(ctx context.Context, accountID string) error {
		cleared = true
		return nil
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	err = env.otp.VerifyTOTPCode(context.Background(), settings, code)

	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestOTPService_BeginTOTPEnrollment_Fresh(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return account, nil
	}
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return freshSettings(), nil
	}

	var storedSecret, storedNonce []byte
	env.settings.BeginMFAEnrollmentFunc = func(ctx context.Context, accountID string, secretEnc, nonce []byte) (bool, error) {
		storedSecret = secretEnc
		storedNonce = nonce
		return true, nil
	}

	enrollment, err := env.otp.BeginTOTPEnrollment(context.Background(), account.ID)

	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	assert.NotEmpty(t, storedSecret)
	assert.NotEmpty(t, storedNonce)
}

func TestOTPService_BeginTOTPEnrollment_ResumesPendingSeed(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return account, nil
	}

	encrypted, nonce, first, err := env.totp.GenerateEnrollment(account.Email)
	require.NoError(t, err)

	settings := freshSettings()
	settings.MFAStatus = models.MFAPending
	settings.MFASecretEnc = encrypted
	settings.MFANonce = nonce
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	// Repeated begins surface the same seed, not a rotated one.
	second, err := env.otp.BeginTOTPEnrollment(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Secret, second.Secret)

	third, err := env.otp.BeginTOTPEnrollment(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Secret, third.Secret)
}

func TestOTPService_BeginTOTPEnrollment_AlreadyActive(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return account, nil
	}
	settings := freshSettings()
	settings.MFAStatus = models.MFAEnabled
	settings.MFASecretEnc = []byte("seed")
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	_, err := env.otp.BeginTOTPEnrollment(context.Background(), account.ID)

	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestOTPService_ConfirmTOTPEnrollment(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")

	encrypted, nonce, enrollment, err := env.totp.GenerateEnrollment(account.Email)
	require.NoError(t, err)

	settings := freshSettings()
	settings.MFAStatus = models.MFAPending
	settings.MFASecretEnc = encrypted
	settings.MFANonce = nonce
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	enabled := false
	env.settings.EnableMFAFunc = func(ctx context.Context, accountID string) error {
		enabled = true
		return nil
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	err = env.otp.ConfirmTOTPEnrollment(context.Background(), account.ID, code, testClient())

	require.NoError(t, err)
	assert.True(t, enabled)
	assert.True(t, env.eventsRepo.HasEvent(models.EventMFAEnabled))
}

func TestOTPService_ConfirmTOTPEnrollment_WrongCode(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")

	encrypted, nonce, _, err := env.totp.GenerateEnrollment(account.Email)
	require.NoError(t, err)

	settings := freshSettings()
	settings.MFAStatus = models.MFAPending
	settings.MFASecretEnc = encrypted
	settings.MFANonce = nonce
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}
	env.settings.EnableMFAFunc = func(ctx context.Context, accountID string) error {
		t.Fatal("MFA must not be enabled on a wrong code")
		return nil
	}

	err = env.otp.ConfirmTOTPEnrollment(context.Background(), account.ID, "000000", testClient())

	assert.ErrorIs(t, err, models.ErrCodeInvalid)
}

func TestOTPService_ConfirmTOTPEnrollment_ExhaustionAbandonsEnrollment(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")

	encrypted, nonce, _, err := env.totp.GenerateEnrollment(account.Email)
	require.NoError(t, err)

	settings := freshSettings()
	settings.MFAStatus = models.MFAPending
	settings.MFASecretEnc = encrypted
	settings.MFANonce = nonce
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}
	env.settings.EnableMFAFunc = func(ctx context.Context, accountID string) error {
		t.Fatal("MFA must not be enabled without a correct code")
		return nil
	}

	attempts := 0
	env.settings.IncrementOTPAttemptsFunc = func(ctx context.Context, accountID string) (int, error) {
		attempts++
		return attempts, nil
	}
	abandoned := false
	env.settings.ResetMFAFunc = func(ctx context.Context, accountID string) error {
		abandoned = true
		return nil
	}

	for i := 0; i < models.OTPAttemptCeiling-1; i++ {
		err := env.otp.ConfirmTOTPEnrollment(context.Background(), account.ID, "000000", testClient())
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
		assert.False(t, abandoned)
	}

	// The fifth wrong guess kills the pending seed.
	err = env.otp.ConfirmTOTPEnrollment(context.Background(), account.ID, "000000", testClient())
	assert.ErrorIs(t, err, models.ErrAttemptsExceeded)
	assert.True(t, abandoned)
	assert.True(t, env.eventsRepo.HasEvent(models.EventMFAFailure))
}

func TestOTPService_ConfirmTOTPEnrollment_NotPending(t *testing.T) {
	env := newTestEnv(t)
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return freshSettings(), nil
	}

	err := env.otp.ConfirmTOTPEnrollment(context.Background(), "acct-1", "123456", testClient())

	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestOTPService_ResetMFA_RecordsEvent(t *testing.T) {
	env := newTestEnv(t)

	reset := false
	env.settings.ResetMFAFunc = func(ctx context.Context, accountID string) error {
		reset = true
		return nil
	}

	err := env.otp.ResetMFA(context.Background(), "acct-1", "admin-1", testClient())

	require.NoError(t, err)
	assert.True(t, reset)
	assert.True(t, env.eventsRepo.HasEvent(models.EventMFADisabled))
}

func TestOTPService_ResetMFA_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.settings.ResetMFAFunc = func(ctx context.Context, accountID string) error {
		return models.ErrNotFound
	}

	err := env.otp.ResetMFA(context.Background(), "missing", "admin-1", testClient())

	assert.True(t, errors.Is(err, models.ErrNotFound))
}
