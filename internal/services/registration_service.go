package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nbenslimane/assurid/internal/models"
	pkgauth "github.com/nbenslimane/assurid/pkg/auth"
	pkglogger "github.com/nbenslimane/assurid/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// RegistrationRepository defines the interface for registration data access
type RegistrationRepository interface {
	UpsertChallenge(ctx context.Context, c *models.RegistrationChallenge) error
	GetChallenge(ctx context.Context, email string) (*models.RegistrationChallenge, error)
	IncrementChallengeAttempts(ctx context.Context, email string) (int, error)
	DeleteChallenge(ctx context.Context, email string) error
	CreateRequest(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error)
	GetRequest(ctx context.Context, id string) (*models.RegistrationRequest, error)
	HasPendingRequest(ctx context.Context, email string) (bool, error)
	HasApprovedRequest(ctx context.Context, email string) (bool, error)
	ListRequests(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error)
	MarkReviewed(ctx context.Context, id, status, reviewerID, rejectionReason string) (*models.RegistrationRequest, error)
}

// compatibleRoles lists the roles a reviewer may assign per declared
// request type. The first entry is the default when the reviewer picks
// none. Anything outside the set is an elevation and requires the
// reviewer to hold admin_superieur.
var compatibleRoles = map[string][]string{
	models.RequestTypeUser:        {models.RoleUser},
	models.RequestTypePrestataire: {models.RolePrestataire},
	models.RequestTypeAdmin:       {models.RoleAdmin, models.RoleAgent, models.RoleValidator},
	models.RequestTypeITEngineer:  {models.RoleSecurityEngineer},
}

func roleCompatible(requestType, role string) bool {
	for _, r := range compatibleRoles[requestType] {
		if r == role {
			return true
		}
	}
	return false
}

// RegistrationService runs the approval pipeline: email-ownership proof,
// request filing, and the human review that provisions an account.
type RegistrationService struct {
	repo     RegistrationRepository
	accounts AccountRepository
	settings SecuritySettingsRepository
	email    EmailSender
	events   *EventService
	logger   *slog.Logger
}

// NewRegistrationService creates a new RegistrationService
func NewRegistrationService(
	repo RegistrationRepository,
	accounts AccountRepository,
	settings SecuritySettingsRepository,
	email EmailSender,
	events *EventService,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		repo:     repo,
		accounts: accounts,
		settings: settings,
		email:    email,
		events:   events,
		logger:   logger,
	}
}

// CodeRequest is the first step of registration: who is asking, and as what.
type CodeRequest struct {
	Email       string
	FirstName   string
	LastName    string
	RequestType string
}

// RequestCode validates the applicant's intent and emails an ownership
// code. No durable request exists until the code is verified.
func (s *RegistrationService) RequestCode(ctx context.Context, req CodeRequest, client models.ClientContext) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !models.IsValidRequestType(req.RequestType) {
		return models.ErrBadRequest
	}

	if models.RequiresInstitutionalEmail(req.RequestType) &&
		!strings.HasSuffix(email, "@"+models.InstitutionalDomain) {
		return models.ErrForbidden
	}

	// An address that already holds an account, or was already approved,
	// goes through support instead of a second registration.
	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.ErrInternalServer
	}

	approved, err := s.repo.HasApprovedRequest(ctx, email)
	if err != nil {
		return models.ErrInternalServer
	}
	if approved {
		return models.ErrAlreadyApproved
	}

	code, err := pkgauth.GenerateNumericCode(pkgauth.OTPCodeLength)
	if err != nil {
		return models.ErrInternalServer
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return models.ErrInternalServer
	}

	challenge := &models.RegistrationChallenge{
		Email:       email,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		RequestType: req.RequestType,
		CodeHash:    string(hash),
		ExpiresAt:   time.Now().Add(models.OTPExpiry),
		CreatedAt:   time.Now(),
	}
	if err := s.repo.UpsertChallenge(ctx, challenge); err != nil {
		s.logger.Error("failed to store registration challenge", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendRegistrationCode(ctx, email, code, models.OTPExpiry); err != nil {
		return models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventRegistrationCode, models.SeverityInfo, nil, client, models.EventDetail{
		"email":        pkglogger.SanitizedEmail(email),
		"request_type": req.RequestType,
	})

	return nil
}

// Submission carries the full application filed once the email is proven.
type Submission struct {
	Email string
	Code  string

	Phone            string
	InsuranceNumber  string
	OrganizationName string
	OrganizationType string
	LicenseNumber    string
	DocumentRef      string
}

// VerifyAndFile checks the ownership code and, on success, consumes the
// challenge and files the registration request for review. The identity
// fields (name, request type) come from the challenge, not the submission,
// so they cannot drift between the two steps.
func (s *RegistrationService) VerifyAndFile(ctx context.Context, sub Submission, client models.ClientContext) (*models.RegistrationRequest, error) {
	email := strings.ToLower(strings.TrimSpace(sub.Email))

	challenge, err := s.repo.GetChallenge(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoChallenge
		}
		return nil, models.ErrInternalServer
	}

	if challenge.Expired(time.Now()) {
		return nil, models.ErrCodeExpired
	}

	attempts, err := s.repo.IncrementChallengeAttempts(ctx, email)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if attempts > models.OTPAttemptCeiling {
		return nil, models.ErrAttemptsExceeded
	}

	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(sub.Code)) != nil {
		if attempts >= models.OTPAttemptCeiling {
			return nil, models.ErrAttemptsExceeded
		}
		return nil, &models.CodeInvalidError{Remaining: models.OTPAttemptCeiling - attempts}
	}

	pending, err := s.repo.HasPendingRequest(ctx, email)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if pending {
		return nil, models.ErrConflict
	}

	request := &models.RegistrationRequest{
		Email:            email,
		FirstName:        challenge.FirstName,
		LastName:         challenge.LastName,
		RequestType:      challenge.RequestType,
		Phone:            strings.TrimSpace(sub.Phone),
		InsuranceNumber:  strings.TrimSpace(sub.InsuranceNumber),
		OrganizationName: strings.TrimSpace(sub.OrganizationName),
		OrganizationType: strings.TrimSpace(sub.OrganizationType),
		LicenseNumber:    strings.TrimSpace(sub.LicenseNumber),
		DocumentRef:      strings.TrimSpace(sub.DocumentRef),
	}

	created, err := s.repo.CreateRequest(ctx, request)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create registration request", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Consume the challenge so the code cannot file a second request.
	if err := s.repo.DeleteChallenge(ctx, email); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to consume registration challenge", slog.Any("error", err))
	}

	s.events.Record(ctx, models.EventRegistrationFiled, models.SeverityInfo, nil, client, models.EventDetail{
		"request_id":   created.ID,
		"request_type": created.RequestType,
	})

	return created, nil
}

// Approve moves a pending request to approved, provisions the account with
// the reviewer-assigned role, and mails a temporary password. The review
// write commits first; the notification is best-effort and its failure is
// recorded, never propagated. An empty assignedRole means the default for
// the declared request type; anything outside the type's compatible set
// requires the reviewer to hold admin_superieur.
func (s *RegistrationService) Approve(ctx context.Context, requestID, reviewerID, assignedRole string, client models.ClientContext) (*models.RegistrationRequest, error) {
	pending, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	allowed, ok := compatibleRoles[pending.RequestType]
	if !ok {
		return nil, models.ErrInternalServer
	}
	if assignedRole == "" {
		assignedRole = allowed[0]
	}
	if !models.IsValidRole(assignedRole) {
		return nil, models.ErrBadRequest
	}
	if !roleCompatible(pending.RequestType, assignedRole) {
		reviewer, err := s.accounts.GetByID(ctx, reviewerID)
		if err != nil {
			return nil, models.ErrInternalServer
		}
		if !reviewer.HasRole(models.RoleAdminSuperieur) {
			s.events.Record(ctx, models.EventAccessDenied, models.SeverityWarning, &reviewerID, client, models.EventDetail{
				"reason":        "role_elevation_denied",
				"request_id":    requestID,
				"assigned_role": assignedRole,
			})
			return nil, models.ErrForbidden
		}
	}

	// Duplicate-provisioning guard before the terminal write, so a request
	// for an email that gained an account in the meantime is not marked
	// approved without one.
	if _, err := s.accounts.GetByEmail(ctx, pending.Email); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInternalServer
	}

	request, err := s.repo.MarkReviewed(ctx, requestID, models.RequestStatusApproved, reviewerID, "")
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound),
			errors.Is(err, models.ErrAlreadyApproved),
			errors.Is(err, models.ErrStateConflict):
			return nil, err
		}
		s.logger.Error("failed to approve registration request", slog.String("request_id", requestID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	tempPassword, err := pkgauth.GenerateTemporaryPassword()
	if err != nil {
		return nil, models.ErrInternalServer
	}
	hash, err := pkgauth.HashPassword(tempPassword)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	account := &models.Account{
		Email:        request.Email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(request.FirstName + " " + request.LastName),
		Roles:        []string{assignedRole},
	}
	if _, err := s.accounts.Create(ctx, account, true); err != nil {
		// The request is approved but the account failed to materialize.
		// Surface loudly: this needs an operator, not a retry by the
		// applicant.
		s.logger.Error("approved request but account provisioning failed",
			slog.String("request_id", requestID), slog.Any("error", err))
		s.events.Record(ctx, models.EventSuspiciousActivity, models.SeverityCritical, nil, client, models.EventDetail{
			"reason":     "approval_without_account",
			"request_id": requestID,
		})
		return nil, models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventRequestApproved, models.SeverityInfo, &account.ID, client, models.EventDetail{
		"request_id":  requestID,
		"reviewer_id": reviewerID,
	})

	if err := s.email.SendApprovalNotice(ctx, request.Email, tempPassword); err != nil {
		s.events.Record(ctx, models.EventNotificationFailed, models.SeverityWarning, &account.ID, client, models.EventDetail{
			"request_id":   requestID,
			"notification": "approval",
		})
	}

	return request, nil
}

// Reject moves a pending request to rejected and notifies the applicant.
// Like approval, the decision commits before the notification is attempted.
func (s *RegistrationService) Reject(ctx context.Context, requestID, reviewerID, reason string, client models.ClientContext) (*models.RegistrationRequest, error) {
	request, err := s.repo.MarkReviewed(ctx, requestID, models.RequestStatusRejected, reviewerID, reason)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound),
			errors.Is(err, models.ErrAlreadyApproved),
			errors.Is(err, models.ErrStateConflict):
			return nil, err
		}
		s.logger.Error("failed to reject registration request", slog.String("request_id", requestID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.events.Record(ctx, models.EventRequestRejected, models.SeverityInfo, nil, client, models.EventDetail{
		"request_id":  requestID,
		"reviewer_id": reviewerID,
	})

	if err := s.email.SendRejectionNotice(ctx, request.Email, reason); err != nil {
		s.events.Record(ctx, models.EventNotificationFailed, models.SeverityWarning, nil, client, models.EventDetail{
			"request_id":   requestID,
			"notification": "rejection",
		})
	}

	return request, nil
}

// Get returns one request.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	return s.repo.GetRequest(ctx, id)
}

// List returns requests for the review queue, optionally filtered by status.
func (s *RegistrationService) List(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error) {
	if status != "" && status != models.RequestStatusPending &&
		status != models.RequestStatusApproved && status != models.RequestStatusRejected {
		return nil, models.ErrBadRequest
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListRequests(ctx, status, limit, offset)
}
