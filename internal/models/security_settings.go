package models

import (
	"time"
)

// MFA lifecycle states. Transitions: disabled → pending → enabled
// (or enforced by organization policy); reset returns any state to disabled.
const (
	MFADisabled = "disabled"
	MFAPending  = "pending"
	MFAEnabled  = "enabled"
	MFAEnforced = "enforced"
)

// Second-factor mechanisms accepted by the verification contract.
const (
	MFAModeTOTP  = "totp"
	MFAModeEmail = "email"
)

// OTPAttemptCeiling is the hard ceiling on wrong submissions per challenge.
// Once reached the challenge is dead, even for a correct code.
const OTPAttemptCeiling = 5

// OTPExpiry is the lifetime of an email one-time code.
const OTPExpiry = 10 * time.Minute

// FailedLoginCeiling is the number of consecutive wrong passwords that
// trips a temporary lockout.
const FailedLoginCeiling = 5

// LockoutDuration is how long a tripped lockout stays in force.
const LockoutDuration = 15 * time.Minute

// PasswordRotationInterval is the maximum password age before login is
// withheld pending a forced change.
const PasswordRotationInterval = 30 * 24 * time.Hour

// SecuritySettings is the per-account security state, one-to-one with Account.
// All attempt counters here are mutated through conditional updates in the
// repository, never read-modify-write in application memory.
type SecuritySettings struct {
	AccountID string

	MFAStatus    string
	MFASecretEnc []byte // AES-256-GCM encrypted TOTP seed, set once enrollment begins
	MFANonce     []byte
	MFAEnabledAt *time.Time

	// Email OTP challenge (password change / login second factor).
	// Single slot: re-requesting a code supersedes the previous one.
	OTPCodeHash  string
	OTPExpiresAt *time.Time
	OTPAttempts  int

	FailedLoginAttempts int
	LockedUntil         *time.Time

	PasswordChangedAt  *time.Time
	PasswordMustChange bool

	LastLoginAt       *time.Time
	LastLoginIP       string
	LastLoginLocation string

	UpdatedAt time.Time
}

// MFAActive reports whether the account's effective policy requires a
// second factor at login.
func (s *SecuritySettings) MFAActive() bool {
	return s.MFAStatus == MFAEnabled || s.MFAStatus == MFAEnforced
}

// Locked reports whether a lockout window is currently in force.
func (s *SecuritySettings) Locked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// OTPLive reports whether an unexpired email OTP challenge exists.
func (s *SecuritySettings) OTPLive(now time.Time) bool {
	return s.OTPCodeHash != "" && s.OTPExpiresAt != nil && now.Before(*s.OTPExpiresAt)
}

// RotationDue reports whether the forced-rotation gate applies: either the
// flag is set or the password is older than the rotation interval.
func (s *SecuritySettings) RotationDue(now time.Time, interval time.Duration) bool {
	if s.PasswordMustChange {
		return true
	}
	return s.PasswordChangedAt == nil || now.Sub(*s.PasswordChangedAt) >= interval
}
