package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	internalauth "github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/services"
	pkghttp "github.com/nbenslimane/assurid/pkg/http"
)

// RegistrationServiceInterface defines the interface for the approval pipeline
type RegistrationServiceInterface interface {
	RequestCode(ctx context.Context, req services.CodeRequest, client models.ClientContext) error
	VerifyAndFile(ctx context.Context, sub services.Submission, client models.ClientContext) (*models.RegistrationRequest, error)
	Approve(ctx context.Context, requestID, reviewerID, assignedRole string, client models.ClientContext) (*models.RegistrationRequest, error)
	Reject(ctx context.Context, requestID, reviewerID, reason string, client models.ClientContext) (*models.RegistrationRequest, error)
	Get(ctx context.Context, id string) (*models.RegistrationRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error)
}

// RegistrationHandler handles registration HTTP requests
type RegistrationHandler struct {
	service  RegistrationServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewRegistrationHandler creates a new RegistrationHandler
func NewRegistrationHandler(service RegistrationServiceInterface, ipConfig *pkghttp.IPConfig) *RegistrationHandler {
	return &RegistrationHandler{service: service, ipConfig: ipConfig}
}

// RequestCodeRequest represents the first registration step
type RequestCodeRequest struct {
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"first_name" validate:"required,min=1,max=100"`
	LastName    string `json:"last_name" validate:"required,min=1,max=100"`
	RequestType string `json:"request_type" validate:"required,oneof=user prestataire admin it_engineer"`
}

// SubmitRequest represents the verified second step
type SubmitRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`

	Phone            string `json:"phone,omitempty" validate:"omitempty,max=30"`
	InsuranceNumber  string `json:"insurance_number,omitempty" validate:"omitempty,max=50"`
	OrganizationName string `json:"organization_name,omitempty" validate:"omitempty,max=200"`
	OrganizationType string `json:"organization_type,omitempty" validate:"omitempty,max=100"`
	LicenseNumber    string `json:"license_number,omitempty" validate:"omitempty,max=50"`
	DocumentRef      string `json:"document_ref,omitempty" validate:"omitempty,max=200"`
}

// ApproveRequest optionally overrides the role provisioned on approval.
type ApproveRequest struct {
	Role string `json:"role,omitempty" validate:"omitempty,max=50"`
}

// RejectRequest carries the reviewer's reason
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// RequestCode mails an email-ownership code to the applicant.
func (h *RegistrationHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.RequestCode(r.Context(), services.CodeRequest{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		RequestType: req.RequestType,
	}, clientContext(r, h.ipConfig))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "This request type requires an institutional email address")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account already exists for this email address")
		case errors.Is(err, models.ErrAlreadyApproved):
			pkghttp.WriteConflict(w, "A registration for this email was already approved. Contact support.")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid registration request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "Verification code sent"})
}

// Submit verifies the code and files the request for review.
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	request, err := h.service.VerifyAndFile(r.Context(), services.Submission{
		Email:            req.Email,
		Code:             req.Code,
		Phone:            req.Phone,
		InsuranceNumber:  req.InsuranceNumber,
		OrganizationName: req.OrganizationName,
		OrganizationType: req.OrganizationType,
		LicenseNumber:    req.LicenseNumber,
		DocumentRef:      req.DocumentRef,
	}, clientContext(r, h.ipConfig))
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "A registration request for this email is already pending review")
			return
		}
		writeChallengeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, request)
}

// List returns requests for the review queue.
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	status := r.URL.Query().Get("status")

	requests, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Unknown status filter")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// Get returns one request.
func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Registration request not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, request)
}

// Approve moves a pending request to approved and provisions the account.
func (h *RegistrationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	// The body is optional: an absent or empty role means the default for
	// the request's declared type.
	var req ApproveRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	request, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), claims.AccountID, req.Role, clientContext(r, h.ipConfig))
	if err != nil {
		writeReviewError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, request)
}

// Reject moves a pending request to rejected.
func (h *RegistrationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	request, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), claims.AccountID, req.Reason, clientContext(r, h.ipConfig))
	if err != nil {
		writeReviewError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, request)
}

// writeReviewError maps review transition errors. A request reviewed by
// someone else comes back as a conflict naming what happened.
func writeReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Registration request not found")
	case errors.Is(err, models.ErrAlreadyApproved):
		pkghttp.WriteConflict(w, "Request was already approved")
	case errors.Is(err, models.ErrStateConflict):
		pkghttp.WriteConflict(w, "Request was already reviewed")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "An account already exists for this email address")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Assigning this role requires a higher privilege level")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Unknown role")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
