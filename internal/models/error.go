package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication state errors
	ErrAccountLocked          = errors.New("account is temporarily locked")
	ErrIPBlocked              = errors.New("ip address is blocked")
	ErrPasswordChangeRequired = errors.New("password change required")
	ErrMFARequired            = errors.New("second factor required")

	// Challenge errors
	ErrCodeExpired      = errors.New("code has expired")
	ErrCodeInvalid      = errors.New("code is invalid")
	ErrAttemptsExceeded = errors.New("too many failed attempts")
	ErrNoChallenge      = errors.New("no active challenge")

	// Registration pipeline errors
	ErrAlreadyApproved = errors.New("registration already approved for this email")
	ErrStateConflict   = errors.New("request already reviewed")

	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// CodeInvalidError carries how many submissions remain before the
// challenge dies. Unwraps to ErrCodeInvalid so callers can still match the
// sentinel.
type CodeInvalidError struct {
	Remaining int
}

func (e *CodeInvalidError) Error() string {
	return fmt.Sprintf("code is invalid (%d attempts remaining)", e.Remaining)
}

func (e *CodeInvalidError) Unwrap() error {
	return ErrCodeInvalid
}
