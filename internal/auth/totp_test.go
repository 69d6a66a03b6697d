package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewTOTPManager_KeyLength(t *testing.T) {
	_, err := NewTOTPManager([]byte("short"), "AssurNet")
	assert.Error(t, err)

	mgr, err := NewTOTPManager(testKey(), "AssurNet")
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestTOTPManager_EncryptDecryptRoundTrip(t *testing.T) {
	mgr, err := NewTOTPManager(testKey(), "AssurNet")
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	encrypted, nonce, err := mgr.EncryptSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, encrypted)

	plaintext, err := mgr.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, plaintext)
}

func TestTOTPManager_DecryptWithWrongNonceFails(t *testing.T) {
	mgr, err := NewTOTPManager(testKey(), "AssurNet")
	require.NoError(t, err)

	encrypted, _, err := mgr.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	_, err = mgr.DecryptSecret(encrypted, make([]byte, 12))
	assert.Error(t, err)
}

func TestTOTPManager_GenerateEnrollment(t *testing.T) {
	mgr, err := NewTOTPManager(testKey(), "AssurNet")
	require.NoError(t, err)

	encrypted, nonce, enrollment, err := mgr.GenerateEnrollment("agent@assurnet.tn")
	require.NoError(t, err)

	assert.NotEmpty(t, encrypted)
	assert.NotEmpty(t, nonce)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, enrollment.ProvisioningURI, "AssurNet")
	assert.True(t, strings.HasPrefix(enrollment.QRCodeDataURL, "data:image/png;base64,"))

	// The stored ciphertext decrypts back to the surfaced secret.
	plaintext, err := mgr.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Secret, string(plaintext))
}

func TestTOTPManager_EnrollmentFromSecret_SameSeed(t *testing.T) {
	mgr, err := NewTOTPManager(testKey(), "AssurNet")
	require.NoError(t, err)

	encrypted, nonce, first, err := mgr.GenerateEnrollment("agent@assurnet.tn")
	require.NoError(t, err)

	second, err := mgr.EnrollmentFromSecret(encrypted, nonce, "agent@assurnet.tn")
	require.NoError(t, err)

	assert.Equal(t, first.Secret, second.Secret)
	assert.Contains(t, second.ProvisioningURI, "secret="+first.Secret)
}

func TestTOTPManager_ValidateCode(t *testing.T) {
	mgr, err := NewTOTPManager(testKey(), "AssurNet")
	require.NoError(t, err)

	encrypted, nonce, enrollment, err := mgr.GenerateEnrollment("agent@assurnet.tn")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	valid, err := mgr.ValidateCode(encrypted, nonce, code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = mgr.ValidateCode(encrypted, nonce, "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}
