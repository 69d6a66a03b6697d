package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/services"
	pkghttp "github.com/nbenslimane/assurid/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds token claims to the request context for testing
// authenticated endpoints
func WithAuthContext(req *http.Request, accountID, email string) *http.Request {
	claims := &models.TokenClaims{
		Type:      models.TokenTypeAccess,
		AccountID: accountID,
		Email:     email,
	}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc     func(ctx context.Context, email, password string, client models.ClientContext) (*models.LoginOutcome, error)
	VerifyMFAFunc func(ctx context.Context, challengeToken, code string, client models.ClientContext) (*models.LoginOutcome, error)
	RefreshFunc   func(ctx context.Context, refreshToken string) (*models.LoginOutcome, error)
}

func (m *MockLoginService) Login(ctx context.Context, email, password string, client models.ClientContext) (*models.LoginOutcome, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, client)
}

func (m *MockLoginService) VerifyMFA(ctx context.Context, challengeToken, code string, client models.ClientContext) (*models.LoginOutcome, error) {
	if m.VerifyMFAFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.VerifyMFAFunc(ctx, challengeToken, code, client)
}

func (m *MockLoginService) Refresh(ctx context.Context, refreshToken string) (*models.LoginOutcome, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshFunc(ctx, refreshToken)
}

// MockPasswordService implements PasswordServiceInterface and
// TemporaryPasswordIssuer for testing
type MockPasswordService struct {
	RequestChangeCodeFunc      func(ctx context.Context, accountID string) error
	ChangeFunc                 func(ctx context.Context, accountID, currentPassword, newPassword, secondFactorCode string, client models.ClientContext) error
	IssueTemporaryPasswordFunc func(ctx context.Context, accountID, actorID string, client models.ClientContext) (string, error)
}

func (m *MockPasswordService) RequestChangeCode(ctx context.Context, accountID string) error {
	if m.RequestChangeCodeFunc == nil {
		return nil
	}
	return m.RequestChangeCodeFunc(ctx, accountID)
}

func (m *MockPasswordService) Change(ctx context.Context, accountID, currentPassword, newPassword, secondFactorCode string, client models.ClientContext) error {
	if m.ChangeFunc == nil {
		return nil
	}
	return m.ChangeFunc(ctx, accountID, currentPassword, newPassword, secondFactorCode, client)
}

func (m *MockPasswordService) IssueTemporaryPassword(ctx context.Context, accountID, actorID string, client models.ClientContext) (string, error) {
	if m.IssueTemporaryPasswordFunc == nil {
		return "", models.ErrNotFound
	}
	return m.IssueTemporaryPasswordFunc(ctx, accountID, actorID, client)
}

// MockOTPService implements OTPServiceInterface for testing
type MockOTPService struct {
	BeginTOTPEnrollmentFunc   func(ctx context.Context, accountID string) (*auth.Enrollment, error)
	ConfirmTOTPEnrollmentFunc func(ctx context.Context, accountID, code string, client models.ClientContext) error
	ResetMFAFunc              func(ctx context.Context, accountID, actorID string, client models.ClientContext) error
}

func (m *MockOTPService) BeginTOTPEnrollment(ctx context.Context, accountID string) (*auth.Enrollment, error) {
	if m.BeginTOTPEnrollmentFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.BeginTOTPEnrollmentFunc(ctx, accountID)
}

func (m *MockOTPService) ConfirmTOTPEnrollment(ctx context.Context, accountID, code string, client models.ClientContext) error {
	if m.ConfirmTOTPEnrollmentFunc == nil {
		return nil
	}
	return m.ConfirmTOTPEnrollmentFunc(ctx, accountID, code, client)
}

func (m *MockOTPService) ResetMFA(ctx context.Context, accountID, actorID string, client models.ClientContext) error {
	if m.ResetMFAFunc == nil {
		return nil
	}
	return m.ResetMFAFunc(ctx, accountID, actorID, client)
}

// MockRegistrationService implements RegistrationServiceInterface for testing
type MockRegistrationService struct {
	RequestCodeFunc   func(ctx context.Context, req services.CodeRequest, client models.ClientContext) error
	VerifyAndFileFunc func(ctx context.Context, sub services.Submission, client models.ClientContext) (*models.RegistrationRequest, error)
	ApproveFunc       func(ctx context.Context, requestID, reviewerID, assignedRole string, client models.ClientContext) (*models.RegistrationRequest, error)
	RejectFunc        func(ctx context.Context, requestID, reviewerID, reason string, client models.ClientContext) (*models.RegistrationRequest, error)
	GetFunc           func(ctx context.Context, id string) (*models.RegistrationRequest, error)
	ListFunc          func(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error)
}

func (m *MockRegistrationService) RequestCode(ctx context.Context, req services.CodeRequest, client models.ClientContext) error {
	if m.RequestCodeFunc == nil {
		return nil
	}
	return m.RequestCodeFunc(ctx, req, client)
}

func (m *MockRegistrationService) VerifyAndFile(ctx context.Context, sub services.Submission, client models.ClientContext) (*models.RegistrationRequest, error) {
	if m.VerifyAndFileFunc == nil {
		return nil, models.ErrNoChallenge
	}
	return m.VerifyAndFileFunc(ctx, sub, client)
}

func (m *MockRegistrationService) Approve(ctx context.Context, requestID, reviewerID, assignedRole string, client models.ClientContext) (*models.RegistrationRequest, error) {
	if m.ApproveFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ApproveFunc(ctx, requestID, reviewerID, assignedRole, client)
}

func (m *MockRegistrationService) Reject(ctx context.Context, requestID, reviewerID, reason string, client models.ClientContext) (*models.RegistrationRequest, error) {
	if m.RejectFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RejectFunc(ctx, requestID, reviewerID, reason, client)
}

func (m *MockRegistrationService) Get(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	if m.GetFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetFunc(ctx, id)
}

func (m *MockRegistrationService) List(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error) {
	if m.ListFunc == nil {
		return []*models.RegistrationRequest{}, nil
	}
	return m.ListFunc(ctx, status, limit, offset)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	UnlockAccountFunc  func(ctx context.Context, accountID, actorID string, client models.ClientContext) error
	BlockIPFunc        func(ctx context.Context, address, reason string, expiresAt *time.Time, actorID string, client models.ClientContext) (*models.BlockedIP, error)
	UnblockIPFunc      func(ctx context.Context, address, actorID string, client models.ClientContext) error
	ListBlockedIPsFunc func(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error)
	ListAccountsFunc   func(ctx context.Context, limit, offset int) ([]*models.Account, error)
	AssignRoleFunc     func(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error
	RevokeRoleFunc     func(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error
}

func (m *MockAdminService) UnlockAccount(ctx context.Context, accountID, actorID string, client models.ClientContext) error {
	if m.UnlockAccountFunc == nil {
		return nil
	}
	return m.UnlockAccountFunc(ctx, accountID, actorID, client)
}

func (m *MockAdminService) BlockIP(ctx context.Context, address, reason string, expiresAt *time.Time, actorID string, client models.ClientContext) (*models.BlockedIP, error) {
	if m.BlockIPFunc == nil {
		return &models.BlockedIP{Address: address, Reason: reason}, nil
	}
	return m.BlockIPFunc(ctx, address, reason, expiresAt, actorID, client)
}

func (m *MockAdminService) UnblockIP(ctx context.Context, address, actorID string, client models.ClientContext) error {
	if m.UnblockIPFunc == nil {
		return nil
	}
	return m.UnblockIPFunc(ctx, address, actorID, client)
}

func (m *MockAdminService) ListBlockedIPs(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error) {
	if m.ListBlockedIPsFunc == nil {
		return []*models.BlockedIP{}, nil
	}
	return m.ListBlockedIPsFunc(ctx, limit, offset)
}

func (m *MockAdminService) ListAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if m.ListAccountsFunc == nil {
		return []*models.Account{}, nil
	}
	return m.ListAccountsFunc(ctx, limit, offset)
}

func (m *MockAdminService) AssignRole(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error {
	if m.AssignRoleFunc == nil {
		return nil
	}
	return m.AssignRoleFunc(ctx, accountID, role, actorID, client)
}

func (m *MockAdminService) RevokeRole(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error {
	if m.RevokeRoleFunc == nil {
		return nil
	}
	return m.RevokeRoleFunc(ctx, accountID, role, actorID, client)
}

// MockEventService implements EventServiceInterface for testing
type MockEventService struct {
	ListFunc func(ctx context.Context, q services.EventQuery) ([]*models.SecurityEvent, error)
}

func (m *MockEventService) List(ctx context.Context, q services.EventQuery) ([]*models.SecurityEvent, error) {
	if m.ListFunc == nil {
		return []*models.SecurityEvent{}, nil
	}
	return m.ListFunc(ctx, q)
}
