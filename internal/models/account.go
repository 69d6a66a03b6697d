package models

import (
	"time"
)

// Roles assignable to an account. An account can hold several at once;
// assignments are granted only through the approval pipeline or an admin.
const (
	RoleAdminSuperieur   = "admin_superieur"
	RoleAdmin            = "admin"
	RoleAgent            = "agent"
	RoleValidator        = "validator"
	RoleUser             = "user"
	RolePrestataire      = "prestataire"
	RoleSecurityEngineer = "security_engineer"
)

// AllRoles lists every role known to the system.
var AllRoles = []string{
	RoleAdminSuperieur,
	RoleAdmin,
	RoleAgent,
	RoleValidator,
	RoleUser,
	RolePrestataire,
	RoleSecurityEngineer,
}

// Account is the identity record. Accounts are created only by the
// approval pipeline's provisioning step or by a direct administrative
// action, never by self-registration alone.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never exposed
	Name         string    `json:"name"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the account holds the given role.
func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
