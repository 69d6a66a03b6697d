package auth

import (
	"testing"
	"time"

	"github.com/nbenslimane/assurid/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenManager() *TokenManager {
	return NewTokenManager("test-secret-at-least-32-characters!!", 15*time.Minute, 7*24*time.Hour)
}

func TestTokenManager_AccessTokenRoundTrip(t *testing.T) {
	tm := testTokenManager()

	token, err := tm.GenerateAccessToken("acct-1", "agent@assurnet.tn")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeAccess, claims.Type)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "agent@assurnet.tn", claims.Email)
}

func TestTokenManager_ValidateTokenOfType(t *testing.T) {
	tm := testTokenManager()

	mfaToken, err := tm.GenerateMFAToken("acct-1", "agent@assurnet.tn")
	require.NoError(t, err)

	claims, err := tm.ValidateTokenOfType(mfaToken, models.TokenTypeMFA)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)

	// An MFA challenge token must not pass as an access token.
	_, err = tm.ValidateTokenOfType(mfaToken, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestTokenManager_PasswordChangeTokenType(t *testing.T) {
	tm := testTokenManager()

	token, err := tm.GeneratePasswordChangeToken("acct-1", "agent@assurnet.tn")
	require.NoError(t, err)

	claims, err := tm.ValidateTokenOfType(token, models.TokenTypePasswordChange)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypePasswordChange, claims.Type)

	_, err = tm.ValidateTokenOfType(token, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestTokenManager_RejectsTamperedToken(t *testing.T) {
	tm := testTokenManager()

	token, err := tm.GenerateAccessToken("acct-1", "agent@assurnet.tn")
	require.NoError(t, err)

	_, err = tm.ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	tm := testTokenManager()
	other := NewTokenManager("another-secret-also-32-characters!!!", 15*time.Minute, 7*24*time.Hour)

	token, err := tm.GenerateAccessToken("acct-1", "agent@assurnet.tn")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}
