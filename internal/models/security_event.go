package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Security event types emitted by the orchestrators.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventIPBlocked          = "ip_blocked"
	EventAccountLocked      = "account_locked"
	EventMFAEnabled         = "mfa_enabled"
	EventMFADisabled        = "mfa_disabled"
	EventMFAFailure         = "mfa_failure"
	EventPasswordChanged    = "password_changed"
	EventAccessDenied       = "access_denied"
	EventSuspiciousActivity = "suspicious_activity"
	EventRegistrationCode   = "registration_code_sent"
	EventRegistrationFiled  = "registration_submitted"
	EventRequestApproved    = "registration_approved"
	EventRequestRejected    = "registration_rejected"
	EventNotificationFailed = "notification_failed"
	EventAccountUnlocked    = "account_unlocked"
	EventIPUnblocked        = "ip_unblocked"
	EventRoleChanged        = "role_changed"
)

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent is an append-only audit record. The core never mutates or
// deletes rows; retention is an external concern.
type SecurityEvent struct {
	ID        string      `json:"id"`
	EventType string      `json:"event_type"`
	Severity  string      `json:"severity"`
	AccountID *string     `json:"account_id,omitempty"` // nil for anonymous events (unknown email, blocked IP)
	IPAddress string      `json:"ip_address"`
	Location  string      `json:"location,omitempty"`
	Detail    EventDetail `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// EventDetail is the free-form payload, stored as JSONB.
type EventDetail map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *EventDetail) Scan(value interface{}) error {
	if value == nil {
		*d = make(EventDetail)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = EventDetail(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d EventDetail) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}
