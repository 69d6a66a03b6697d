package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nbenslimane/assurid/internal/models"
)

// Challenge tokens are deliberately short-lived: they only bridge the gap
// between a correct password and the remaining login gate.
const (
	MFATokenExpiry            = 5 * time.Minute
	PasswordChangeTokenExpiry = 10 * time.Minute
)

// TokenManager handles JWT generation and validation for sessions and the
// scoped challenge tokens issued by the login orchestrator.
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

func (tm *TokenManager) generate(tokenType, accountID, email string, expiry time.Duration) (string, error) {
	claims := &models.TokenClaims{
		Type:      tokenType,
		AccountID: accountID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// GenerateAccessToken creates a short-lived access token.
func (tm *TokenManager) GenerateAccessToken(accountID, email string) (string, error) {
	return tm.generate(models.TokenTypeAccess, accountID, email, tm.accessTokenExpiry)
}

// GenerateRefreshToken creates a long-lived refresh token.
func (tm *TokenManager) GenerateRefreshToken(accountID, email string) (string, error) {
	return tm.generate(models.TokenTypeRefresh, accountID, email, tm.refreshTokenExpiry)
}

// GenerateMFAToken creates the challenge token handed back when login is
// withheld pending second-factor verification.
func (tm *TokenManager) GenerateMFAToken(accountID, email string) (string, error) {
	return tm.generate(models.TokenTypeMFA, accountID, email, MFATokenExpiry)
}

// GeneratePasswordChangeToken creates the challenge token handed back when
// login is withheld pending forced rotation.
func (tm *TokenManager) GeneratePasswordChangeToken(accountID, email string) (string, error) {
	return tm.generate(models.TokenTypePasswordChange, accountID, email, PasswordChangeTokenExpiry)
}

// ValidateToken verifies a token and returns its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}

// ValidateTokenOfType verifies a token and additionally pins the expected
// type, so a challenge token can never stand in for a session.
func (tm *TokenManager) ValidateTokenOfType(tokenString, tokenType string) (*models.TokenClaims, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}
