package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types issued by the token manager. Challenge tokens (mfa,
// password_change) are narrowly scoped and short-lived; they cannot be
// used for API access.
const (
	TokenTypeAccess         = "access"
	TokenTypeRefresh        = "refresh"
	TokenTypeMFA            = "mfa"
	TokenTypePasswordChange = "password_change"
)

// TokenClaims are the JWT claims carried by every token this service signs.
type TokenClaims struct {
	Type      string `json:"typ"`
	AccountID string `json:"sub_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// ClientContext carries the request-scoped client attributes every
// orchestrator call receives.
type ClientContext struct {
	IPAddress string
	UserAgent string
	Location  string
}

// Login outcome statuses. A session is granted only on StatusGranted;
// the other two withhold it pending a further step.
const (
	LoginGranted                = "granted"
	LoginMFARequired            = "mfa_required"
	LoginPasswordChangeRequired = "password_change_required"
)

// LoginOutcome is the result of a completed login attempt that passed the
// credential check. ChallengeToken is set for the two gated outcomes;
// MFAMode tells the client which second factor to collect.
type LoginOutcome struct {
	Status         string `json:"status"`
	AccessToken    string `json:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	ChallengeToken string `json:"challenge_token,omitempty"`
	MFAMode        string `json:"mfa_mode,omitempty"`
}
