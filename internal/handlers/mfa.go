package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	internalauth "github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	pkghttp "github.com/nbenslimane/assurid/pkg/http"
)

// OTPServiceInterface defines the interface for second-factor management
type OTPServiceInterface interface {
	BeginTOTPEnrollment(ctx context.Context, accountID string) (*internalauth.Enrollment, error)
	ConfirmTOTPEnrollment(ctx context.Context, accountID, code string, client models.ClientContext) error
	ResetMFA(ctx context.Context, accountID, actorID string, client models.ClientContext) error
}

// MFAHandler handles TOTP enrollment HTTP requests
type MFAHandler struct {
	otp      OTPServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(otp OTPServiceInterface, ipConfig *pkghttp.IPConfig) *MFAHandler {
	return &MFAHandler{otp: otp, ipConfig: ipConfig}
}

// EnrollmentResponse represents the material handed back when enrollment begins
type EnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

// ConfirmEnrollmentRequest represents the request body for enrollment confirmation
type ConfirmEnrollmentRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// BeginEnrollment starts (or resumes) TOTP setup for the caller.
func (h *MFAHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	enrollment, err := h.otp.BeginTOTPEnrollment(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			pkghttp.WriteConflict(w, "MFA is already enabled. Reset it before enrolling again.")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, EnrollmentResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCodeDataURL,
	})
}

// ConfirmEnrollment proves the authenticator holds the pending seed.
func (h *MFAHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ConfirmEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.otp.ConfirmTOTPEnrollment(r.Context(), claims.AccountID, req.Code, clientContext(r, h.ipConfig))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStateConflict):
			pkghttp.WriteConflict(w, "No enrollment in progress")
		case errors.Is(err, models.ErrCodeInvalid):
			pkghttp.WriteError(w, http.StatusUnauthorized, "code_invalid", "Invalid code")
		case errors.Is(err, models.ErrAttemptsExceeded):
			pkghttp.WriteTooManyRequests(w, "Too many failed attempts. Restart enrollment.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "MFA enabled"})
}

// Reset disables the caller's own second factor.
func (h *MFAHandler) Reset(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.otp.ResetMFA(r.Context(), claims.AccountID, claims.AccountID, clientContext(r, h.ipConfig)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "MFA disabled"})
}

// AdminReset disables another account's second factor, for holders of the
// MFA reset capability.
func (h *MFAHandler) AdminReset(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "Missing account id")
		return
	}

	if err := h.otp.ResetMFA(r.Context(), accountID, claims.AccountID, clientContext(r, h.ipConfig)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "MFA disabled"})
}
