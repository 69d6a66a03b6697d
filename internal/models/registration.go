package models

import (
	"time"
)

// Registration request types declared by the applicant.
const (
	RequestTypeUser        = "user"
	RequestTypePrestataire = "prestataire"
	RequestTypeAdmin       = "admin"
	RequestTypeITEngineer  = "it_engineer"
)

// Registration request statuses. A request transitions at most once,
// from pending to exactly one terminal state.
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// RegistrationRequest is an applicant's submission awaiting a human trust
// decision. Created only after email ownership is proven; immutable once
// reviewed except for the status/reviewer fields.
type RegistrationRequest struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone,omitempty"`
	RequestType string `json:"request_type"`

	// Type-specific proof fields.
	InsuranceNumber  string `json:"insurance_number,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	OrganizationType string `json:"organization_type,omitempty"`
	LicenseNumber    string `json:"license_number,omitempty"`

	// Opaque reference into evidence storage; the blob itself never
	// passes through this subsystem.
	DocumentRef string `json:"document_ref,omitempty"`

	Status          string     `json:"status"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Reviewed reports whether the request has reached a terminal state.
func (r *RegistrationRequest) Reviewed() bool {
	return r.Status != RequestStatusPending
}

// RegistrationChallenge is the ephemeral email-ownership proof: one active
// challenge per email, superseded by re-send, consumed on verification.
type RegistrationChallenge struct {
	Email       string
	FirstName   string
	LastName    string
	RequestType string
	CodeHash    string
	ExpiresAt   time.Time
	Attempts    int
	CreatedAt   time.Time
}

// Expired reports whether the challenge is past its lifetime.
func (c *RegistrationChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Exhausted reports whether the attempt ceiling has been reached.
func (c *RegistrationChallenge) Exhausted() bool {
	return c.Attempts >= OTPAttemptCeiling
}

// InstitutionalDomain is the email domain required for admin and
// it_engineer registration requests.
const InstitutionalDomain = "assurnet.tn"

// RequiresInstitutionalEmail reports whether the request type is restricted
// to institutional addresses.
func RequiresInstitutionalEmail(requestType string) bool {
	return requestType == RequestTypeAdmin || requestType == RequestTypeITEngineer
}

// IsValidRequestType reports whether t is a known request type.
func IsValidRequestType(t string) bool {
	switch t {
	case RequestTypeUser, RequestTypePrestataire, RequestTypeAdmin, RequestTypeITEngineer:
		return true
	}
	return false
}
