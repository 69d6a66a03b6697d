package auth

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 12
	MaxPasswordLen = 128
)

// Individual strength requirements. Each failed requirement is surfaced to
// the caller by name, not folded into a single pass/fail.
const (
	RequirementLength  = "length"
	RequirementUpper   = "uppercase"
	RequirementLower   = "lowercase"
	RequirementDigit   = "digit"
	RequirementSpecial = "special"
)

// PasswordValidationError reports which requirements the candidate failed.
type PasswordValidationError struct {
	Failed []string // requirement names
}

func (e *PasswordValidationError) Error() string {
	if len(e.Failed) == 0 {
		return "password validation failed"
	}
	return "password does not meet requirements: " + strings.Join(e.Failed, ", ")
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword checks all five strength rules and reports every failed
// one. Acceptance requires length >= 12 plus one character of each class.
func ValidatePassword(password string) error {
	failed := make([]string, 0)

	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		failed = append(failed, RequirementLength)
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		failed = append(failed, RequirementUpper)
	}
	if !hasLower {
		failed = append(failed, RequirementLower)
	}
	if !hasDigit {
		failed = append(failed, RequirementDigit)
	}
	if !hasSpecial {
		failed = append(failed, RequirementSpecial)
	}

	if len(failed) > 0 {
		return &PasswordValidationError{Failed: failed}
	}

	return nil
}

// tempPasswordCharset excludes ambiguous characters (0/O, 1/I/l).
const tempPasswordCharset = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateTemporaryPassword produces a credential for a freshly provisioned
// account. It satisfies the strength policy so the forced first-login
// rotation is the only gate the new user has to clear.
func GenerateTemporaryPassword() (string, error) {
	const randomLen = 12

	buf := make([]byte, randomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate temporary password: %w", err)
	}
	for i, b := range buf {
		buf[i] = tempPasswordCharset[int(b)%len(tempPasswordCharset)]
	}

	// Prefix guarantees every character class is present.
	return "Tmp9!" + string(buf), nil
}
