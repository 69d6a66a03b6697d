package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	pkgauth "github.com/nbenslimane/assurid/pkg/auth"
	pkghttp "github.com/nbenslimane/assurid/pkg/http"
)

// LoginServiceInterface defines the interface for the login orchestrator
type LoginServiceInterface interface {
	Login(ctx context.Context, email, password string, client models.ClientContext) (*models.LoginOutcome, error)
	VerifyMFA(ctx context.Context, challengeToken, code string, client models.ClientContext) (*models.LoginOutcome, error)
	Refresh(ctx context.Context, refreshToken string) (*models.LoginOutcome, error)
}

// PasswordServiceInterface defines the interface for password changes
type PasswordServiceInterface interface {
	RequestChangeCode(ctx context.Context, accountID string) error
	Change(ctx context.Context, accountID, currentPassword, newPassword, secondFactorCode string, client models.ClientContext) error
}

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	login    LoginServiceInterface
	password PasswordServiceInterface
	tm       *auth.TokenManager
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(login LoginServiceInterface, password PasswordServiceInterface, tm *auth.TokenManager, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		login:    login,
		password: password,
		tm:       tm,
		ipConfig: ipConfig,
	}
}

// clientContext builds the request-scoped client attributes handed to every
// orchestrator call.
func clientContext(r *http.Request, ipConfig *pkghttp.IPConfig) models.ClientContext {
	return models.ClientContext{
		IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
		Location:  r.Header.Get("X-Client-Location"),
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyMFARequest represents the request body for MFA verification
type VerifyMFARequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
}

// RefreshRequest represents the request body for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change.
// Exactly one of ChallengeToken (forced rotation) must be present, or the
// caller must be authenticated with an access token.
type ChangePasswordRequest struct {
	ChallengeToken   string `json:"challenge_token,omitempty"`
	CurrentPassword  string `json:"current_password" validate:"required"`
	NewPassword      string `json:"new_password" validate:"required"`
	ConfirmPassword  string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
	SecondFactorCode string `json:"second_factor_code,omitempty"`
}

// Login handles the email/password step of authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	outcome, err := h.login.Login(r.Context(), req.Email, req.Password, clientContext(r, h.ipConfig))
	if err != nil {
		writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, outcome)
}

// VerifyMFA completes a login withheld pending a second factor.
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req VerifyMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	outcome, err := h.login.VerifyMFA(r.Context(), req.ChallengeToken, req.Code, clientContext(r, h.ipConfig))
	if err != nil {
		writeChallengeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, outcome)
}

// Refresh exchanges a refresh token for a new pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	outcome, err := h.login.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, outcome)
}

// RequestChangeCodeBody optionally carries a password-change challenge
// token for callers in the forced-rotation flow.
type RequestChangeCodeBody struct {
	ChallengeToken string `json:"challenge_token,omitempty"`
}

// RequestPasswordChangeCode mails a second-factor code ahead of a change,
// for accounts on the email MFA mode. Accepts either a password-change
// challenge token or an access token.
func (h *AuthHandler) RequestPasswordChangeCode(w http.ResponseWriter, r *http.Request) {
	var req RequestChangeCodeBody
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	accountID := h.changeSubject(r, req.ChallengeToken)
	if accountID == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.password.RequestChangeCode(r.Context(), accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "Code sent"})
}

// ChangePassword applies a new password, for both the forced-rotation flow
// (challenge token in the body) and a voluntary change (access token).
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	accountID := h.changeSubject(r, req.ChallengeToken)
	if accountID == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.password.Change(r.Context(), accountID, req.CurrentPassword, req.NewPassword, req.SecondFactorCode, clientContext(r, h.ipConfig))
	if err != nil {
		var validationErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &validationErr):
			pkghttp.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, "weak_password",
				"Password does not meet the requirements", validationErr.Failed)
		case errors.Is(err, models.ErrMFARequired):
			pkghttp.WriteError(w, http.StatusPreconditionRequired, "second_factor_required",
				"A second-factor code is required to change the password")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			writeChallengeError(w, err)
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

// changeSubject resolves whose password is being changed: the bearer of a
// valid access token, or the holder of a password-change challenge token.
func (h *AuthHandler) changeSubject(r *http.Request, challengeToken string) string {
	if claims := auth.GetClaimsFromContext(r); claims != nil {
		return claims.AccountID
	}
	if challengeToken != "" {
		if claims, err := h.tm.ValidateTokenOfType(challengeToken, models.TokenTypePasswordChange); err == nil {
			return claims.AccountID
		}
	}
	return ""
}

// writeLoginError maps orchestrator errors to responses. Unknown email and
// wrong password are indistinguishable on the wire.
func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrIPBlocked):
		pkghttp.WriteForbidden(w, "Access from this network is not permitted")
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteTooManyRequests(w, "Account temporarily locked. Please try again later.")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// writeChallengeError maps code-verification errors, surfacing remaining
// attempts when the error carries them.
func writeChallengeError(w http.ResponseWriter, err error) {
	var invalid *models.CodeInvalidError
	switch {
	case errors.As(err, &invalid):
		pkghttp.WriteErrorWithDetails(w, http.StatusUnauthorized, "code_invalid",
			"Invalid code", []string{invalid.Error()})
	case errors.Is(err, models.ErrCodeInvalid):
		pkghttp.WriteError(w, http.StatusUnauthorized, "code_invalid", "Invalid code")
	case errors.Is(err, models.ErrCodeExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "code_expired", "Code has expired. Request a new one.")
	case errors.Is(err, models.ErrAttemptsExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many failed attempts. Request a new code.")
	case errors.Is(err, models.ErrNoChallenge):
		pkghttp.WriteError(w, http.StatusConflict, "no_challenge", "No active code. Request one first.")
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteTooManyRequests(w, "Account temporarily locked. Please try again later.")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
