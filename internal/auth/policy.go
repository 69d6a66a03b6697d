package auth

import (
	"github.com/nbenslimane/assurid/internal/models"
)

// Capabilities guarded by the authorization policy. Routes declare a
// capability; the table below declares which roles hold it. Keeping the
// mapping in one place replaces scattered inline role comparisons.
const (
	CapRegistrationReview = "registration:review"
	CapSecurityEvents     = "security:events"
	CapAccountAdmin       = "account:admin"
	CapMFAReset           = "mfa:reset"
)

// policyTable maps each capability to the set of roles permitted to use it.
var policyTable = map[string][]string{
	CapRegistrationReview: {models.RoleAdminSuperieur, models.RoleAdmin, models.RoleValidator},
	CapSecurityEvents:     {models.RoleAdminSuperieur, models.RoleSecurityEngineer},
	CapAccountAdmin:       {models.RoleAdminSuperieur, models.RoleAdmin},
	CapMFAReset:           {models.RoleAdminSuperieur, models.RoleAdmin},
}

// Allowed is the single policy evaluation point: it reports whether any of
// the caller's roles grants the capability.
func Allowed(capability string, roles []string) bool {
	permitted, ok := policyTable[capability]
	if !ok {
		return false
	}
	for _, have := range roles {
		for _, want := range permitted {
			if have == want {
				return true
			}
		}
	}
	return false
}
