package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	pkglogger "github.com/nbenslimane/assurid/pkg/logger"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testEnv wires the full service graph over mocks, the way main does over
// real repositories.
type testEnv struct {
	accounts   *MockAccountRepository
	settings   *MockSecuritySettingsRepository
	blocked    *MockBlocklistChecker
	eventsRepo *MockSecurityEventRepository
	email      *MockEmailSender

	tm     *auth.TokenManager
	totp   *auth.TOTPManager
	events *EventService
	otp    *OTPService
	login  *LoginService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.Default()

	totpManager, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "AssurNet")
	require.NoError(t, err)

	env := &testEnv{
		accounts:   &MockAccountRepository{},
		settings:   &MockSecuritySettingsRepository{},
		blocked:    &MockBlocklistChecker{},
		eventsRepo: &MockSecurityEventRepository{},
		email:      &MockEmailSender{},
		tm:         auth.NewTokenManager("test-secret-at-least-32-characters!!", 15*time.Minute, 7*24*time.Hour),
		totp:       totpManager,
	}
	env.events = NewEventService(env.eventsRepo, logger, pkglogger.NewAuditLogger(logger))
	env.otp = NewOTPService(env.accounts, env.settings, env.totp, env.email, env.events, logger)
	env.login = NewLoginService(env.accounts, env.settings, env.blocked, env.tm, env.otp, env.events, logger)

	return env
}

func testClient() models.ClientContext {
	return models.ClientContext{IPAddress: "203.0.113.7", Location: "Tunis, TN"}
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testAccount(t *testing.T, password string) *models.Account {
	return &models.Account{
		ID:           "acct-1",
		Email:        "agent@assurnet.tn",
		PasswordHash: hashFor(t, password),
		Name:         "Test Agent",
		Roles:        []string{models.RoleAgent},
	}
}

// freshSettings returns settings for an account with a recently rotated
// password, no MFA and no lockout.
func freshSettings() *models.SecuritySettings {
	changed := time.Now().Add(-time.Hour)
	return &models.SecuritySettings{
		AccountID:         "acct-1",
		MFAStatus:         models.MFADisabled,
		PasswordChangedAt: &changed,
	}
}

func TestLoginService_Login_BlockedIP(t *testing.T) {
	env := newTestEnv(t)
	env.blocked.IsBlockedFunc = func(ctx context.Context, address string) (bool, error) {
		return true, nil
	}

	outcome, err := env.login.Login(context.Background(), "agent@assurnet.tn", "whatever", testClient())

	assert.ErrorIs(t, err, models.ErrIPBlocked)
	assert.Nil(t, outcome)
	assert.True(t, env.eventsRepo.HasEvent(models.EventIPBlocked))
}

func TestLoginService_Login_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	outcome, err := env.login.Login(context.Background(), "nobody@assurnet.tn", "whatever", testClient())

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, outcome)
	assert.True(t, env.eventsRepo.HasEvent(models.EventLoginFailure))
}

func TestLoginService_Login_LockedAccount(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	lockedUntil := time.Now().Add(10 * time.Minute)
	settings := freshSettings()
	settings.LockedUntil = &lockedUntil
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	_, err := env.login.Login(context.Background(), account.Email, "Correct-Horse-9!", testClient())

	// Even the right password does not pass while the lock is in force.
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestLoginService_Login_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return freshSettings(), nil
	}

	recorded := false
	env.settings.RecordFailedLoginFunc = func(ctx context.Context, accountID string) (int, *time.Time, error) {
		recorded = true
		return 2, nil, nil
	}

	_, err := env.login.Login(context.Background(), account.Email, "wrong-password", testClient())

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.True(t, recorded)
	assert.True(t, env.eventsRepo.HasEvent(models.EventLoginFailure))
}

func TestLoginService_Login_FifthFailureLocks(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return freshSettings(), nil
	}
	deadline := time.Now().Add(models.LockoutDuration)
	env.settings.RecordFailedLoginFunc = func(ctx context.Context, accountID string) (int, *time.Time, error) {
		return models.FailedLoginCeiling, &deadline, nil
	}

	_, err := env.login.Login(context.Background(), account.Email, "wrong-password", testClient())

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.True(t, env.eventsRepo.HasEvent(models.EventAccountLocked))
}

func TestLoginService_Login_RotationGateBeforeMFA(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}

	// Password overdue AND MFA enabled: the rotation gate must win.
	stale := time.Now().Add(-31 * 24 * time.Hour)
	settings := freshSettings()
	settings.PasswordChangedAt = &stale
	settings.MFAStatus = models.MFAEnabled
	settings.MFASecretEnc = []byte("seed")
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	outcome, err := env.login.Login(context.Background(), account.Email, "Correct-Horse-9!", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.LoginPasswordChangeRequired, outcome.Status)
	assert.NotEmpty(t, outcome.ChallengeToken)
	assert.Empty(t, outcome.AccessToken)

	claims, err := env.tm.ValidateTokenOfType(outcome.ChallengeToken, models.TokenTypePasswordChange)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID)
}

func TestLoginService_Login_MustChangeFlagForcesRotation(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	settings := freshSettings()
	settings.PasswordMustChange = true
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	outcome, err := env.login.Login(context.Background(), account.Email, "Correct-Horse-9!", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.LoginPasswordChangeRequired, outcome.Status)
}

func TestLoginService_Login_EmailMFASendsCode(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	settings := freshSettings()
	settings.MFAStatus = models.MFAEnforced // email mode: no seed enrolled
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	outcome, err := env.login.Login(context.Background(), account.Email, "Correct-Horse-9!", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.LoginMFARequired, outcome.Status)
	assert.Equal(t, models.MFAModeEmail, outcome.MFAMode)
	assert.NotEmpty(t, outcome.ChallengeToken)
	assert.Contains(t, env.email.LoginCodes, account.Email)
}

func TestLoginService_Login_TOTPMFANoEmail(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	settings := freshSettings()
	settings.MFAStatus = models.MFAEnabled
	settings.MFASecretEnc = []byte("seed")
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	outcome, err := env.login.Login(context.Background(), account.Email, "Correct-Horse-9!", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.LoginMFARequired, outcome.Status)
	assert.Equal(t, models.MFAModeTOTP, outcome.MFAMode)
	assert.Empty(t, env.email.LoginCodes)
}

func TestLoginService_Login_TOTPChallengeOpensFreshWindow(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	settings := freshSettings()
	settings.MFAStatus = models.MFAEnabled
	settings.MFASecretEnc = []byte("seed")
	settings.OTPAttempts = models.OTPAttemptCeiling
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	cleared := false
	env.settings.ClearOTPChallengeFunc = func(ctx context.Context, accountID string) error {
		cleared = true
		return nil
	}

	outcome, err := env.login.Login(context.Background(), account.Email, "Correct-Horse-9!", testClient())

	// A leftover exhausted counter from an abandoned challenge must not
	// bleed into the new one.
	require.NoError(t, err)
	assert.Equal(t, models.LoginMFARequired, outcome.Status)
	assert.True(t, cleared)
}

func TestLoginService_Login_Granted(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return account, nil
	}
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return freshSettings(), nil
	}

	var recordedIP string
	env.settings.RecordLoginFunc = func(ctx context.Context, accountID, ip, location string) error {
		recordedIP = ip
		return nil
	}

	outcome, err := env.login.Login(context.Background(), account.Email, "Correct-Horse-9!", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.LoginGranted, outcome.Status)
	assert.NotEmpty(t, outcome.AccessToken)
	assert.NotEmpty(t, outcome.RefreshToken)
	assert.Equal(t, "203.0.113.7", recordedIP)
	assert.True(t, env.eventsRepo.HasEvent(models.EventLoginSuccess))

	claims, err := env.tm.ValidateTokenOfType(outcome.AccessToken, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID)
}

func TestLoginService_VerifyMFA_EmailCode(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return account, nil
	}

	expires := time.Now().Add(models.OTPExpiry)
	settings := freshSettings()
	settings.MFAStatus = models.MFAEnforced
	settings.OTPCodeHash = hashFor(t, "123456")
	settings.OTPExpiresAt = &expires
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	consumed := false
	env.settings.ClearOTPChallengeFunc = func(ctx context.Context, accountID string) error {
		consumed = true
		return nil
	}

	challenge, err := env.tm.GenerateMFAToken(account.ID, account.Email)
	require.NoError(t, err)

	outcome, err := env.login.VerifyMFA(context.Background(), challenge, "123456", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.LoginGranted, outcome.Status)
	assert.True(t, consumed)
}

func TestLoginService_VerifyMFA_RejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")

	// An access token must not stand in for an MFA challenge token.
	accessToken, err := env.tm.GenerateAccessToken(account.ID, account.Email)
	require.NoError(t, err)

	_, err = env.login.VerifyMFA(context.Background(), accessToken, "123456", testClient())

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestLoginService_VerifyMFA_WrongCodeRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return account, nil
	}

	expires := time.Now().Add(models.OTPExpiry)
	settings := freshSettings()
	settings.MFAStatus = models.MFAEnforced
	settings.OTPCodeHash = hashFor(t, "123456")
	settings.OTPExpiresAt = &expires
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	challenge, err := env.tm.GenerateMFAToken(account.ID, account.Email)
	require.NoError(t, err)

	_, err = env.login.VerifyMFA(context.Background(), challenge, "000000", testClient())

	assert.ErrorIs(t, err, models.ErrCodeInvalid)
	assert.True(t, env.eventsRepo.HasEvent(models.EventMFAFailure))
}

func TestLoginService_VerifyMFA_TOTPAttemptCeiling(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return account, nil
	}

	encrypted, nonce, enrollment, err := env.totp.GenerateEnrollment(account.Email)
	require.NoError(t, err)

	settings := freshSettings()
	settings.MFAStatus = models.MFAEnabled
	settings.MFASecretEnc = encrypted
	settings.MFANonce = nonce
	env.settings.GetFunc = func(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
		return settings, nil
	}

	attempts := 0
	env.settings.IncrementOTPAttemptsFunc = func(ctx context.Context, accountID string) (int, error) {
		attempts++
		return attempts, nil
	}

	challenge, err := env.tm.GenerateMFAToken(account.ID, account.Email)
	require.NoError(t, err)

	for i := 0; i < models.OTPAttemptCeiling-1; i++ {
		_, err := env.login.VerifyMFA(context.Background(), challenge, "000000", testClient())
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
	}

	_, err = env.login.VerifyMFA(context.Background(), challenge, "000000", testClient())
	assert.ErrorIs(t, err, models.ErrAttemptsExceeded)

	// The challenge stays dead for the right code until a new login opens
	// a fresh window.
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	_, err = env.login.VerifyMFA(context.Background(), challenge, code, testClient())
	assert.ErrorIs(t, err, models.ErrAttemptsExceeded)
}

func TestLoginService_Refresh(t *testing.T) {
	env := newTestEnv(t)
	account := testAccount(t, "Correct-Horse-9!")
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return account, nil
	}

	refreshToken, err := env.tm.GenerateRefreshToken(account.ID, account.Email)
	require.NoError(t, err)

	outcome, err := env.login.Refresh(context.Background(), refreshToken)

	require.NoError(t, err)
	assert.Equal(t, models.LoginGranted, outcome.Status)
	assert.NotEmpty(t, outcome.AccessToken)

	// An access token cannot be used to refresh.
	_, err = env.login.Refresh(context.Background(), outcome.AccessToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
