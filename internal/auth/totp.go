package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPManager generates, encrypts and validates time-based one-time
// password seeds. Seeds are stored AES-256-GCM encrypted; the plaintext
// only exists in memory during enrollment and verification.
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string // issuer name shown in authenticator apps
}

// Enrollment is the material handed to a client beginning TOTP setup.
type Enrollment struct {
	Secret          string // base32 seed, shown once for manual entry
	ProvisioningURI string
	QRCodeDataURL   string
}

// NewTOTPManager creates a new TOTP manager.
// encryptionKey must be exactly 32 bytes for AES-256.
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
	}, nil
}

// GenerateEnrollment creates a fresh seed plus the provisioning URI and a
// QR PNG data URL for it.
// Returns: (encryptedSecret, nonce, enrollment, error)
func (tm *TOTPManager) GenerateEnrollment(accountEmail string) ([]byte, []byte, *Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  32,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	enrollment, err := tm.enrollmentFor(key.Secret(), key.URL())
	if err != nil {
		return nil, nil, nil, err
	}

	return encrypted, nonce, enrollment, nil
}

// EnrollmentFromSecret rebuilds the enrollment material for an in-progress
// secret, so repeated setup calls surface the same seed instead of
// rotating it under the user.
func (tm *TOTPManager) EnrollmentFromSecret(encrypted, nonce []byte, accountEmail string) (*Enrollment, error) {
	secretBytes, err := tm.DecryptSecret(encrypted, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	secret := string(secretBytes)
	uri := fmt.Sprintf("otpauth://totp/%s:%s?algorithm=SHA1&digits=6&issuer=%s&period=30&secret=%s",
		tm.issuer, accountEmail, tm.issuer, secret)

	return tm.enrollmentFor(secret, uri)
}

func (tm *TOTPManager) enrollmentFor(secret, uri string) (*Enrollment, error) {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &Enrollment{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
	}, nil
}

// EncryptSecret encrypts a TOTP seed using AES-256-GCM.
// Returns: (encryptedBytes, nonce, error)
func (tm *TOTPManager) EncryptSecret(secretBytes []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, secretBytes, nil)

	return ciphertext, nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP seed.
func (tm *TOTPManager) DecryptSecret(encryptedBytes, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, encryptedBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return plaintext, nil
}

// ValidateCode checks a submitted 6-digit code against an encrypted seed.
// Allows ±1 time step (90 seconds total window) for clock drift.
func (tm *TOTPManager) ValidateCode(encrypted, nonce []byte, code string) (bool, error) {
	secretBytes, err := tm.DecryptSecret(encrypted, nonce)
	if err != nil {
		return false, err
	}

	valid, err := totp.ValidateCustom(code, string(secretBytes), time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}

	return valid, nil
}
