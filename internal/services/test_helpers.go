package services

import (
	"context"
	"time"

	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/repositories"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.Account, error)
	ListFunc               func(ctx context.Context, limit, offset int) ([]*models.Account, error)
	CreateFunc             func(ctx context.Context, account *models.Account, mustChangePassword bool) (*models.Account, error)
	UpdatePasswordHashFunc func(ctx context.Context, id, passwordHash string) error
	AddRoleFunc            func(ctx context.Context, id, role string) error
	RemoveRoleFunc         func(ctx context.Context, id, role string) error
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.Account{}, nil
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account, mustChangePassword bool) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account, mustChangePassword)
	}
	account.ID = "new-account-id"
	return account, nil
}

func (m *MockAccountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockAccountRepository) AddRole(ctx context.Context, id, role string) error {
	if m.AddRoleFunc != nil {
		return m.AddRoleFunc(ctx, id, role)
	}
	return nil
}

func (m *MockAccountRepository) RemoveRole(ctx context.Context, id, role string) error {
	if m.RemoveRoleFunc != nil {
		return m.RemoveRoleFunc(ctx, id, role)
	}
	return nil
}

// MockSecuritySettingsRepository implements SecuritySettingsRepository for testing
type MockSecuritySettingsRepository struct {
	GetFunc                   func(ctx context.Context, accountID string) (*models.SecuritySettings, error)
	RecordFailedLoginFunc     func(ctx context.Context, accountID string) (int, *time.Time, error)
	RecordLoginFunc           func(ctx context.Context, accountID, ip, location string) error
	UnlockFunc                func(ctx context.Context, accountID string) error
	StoreOTPChallengeFunc     func(ctx context.Context, accountID, codeHash string, expiresAt time.Time) error
	IncrementOTPAttemptsFunc  func(ctx context.Context, accountID string) (int, error)
	ClearOTPChallengeFunc     func(ctx context.Context, accountID string) error
	BeginMFAEnrollmentFunc    func(ctx context.Context, accountID string, secretEnc, nonce []byte) (bool, error)
	EnableMFAFunc             func(ctx context.Context, accountID string) error
	ResetMFAFunc              func(ctx context.Context, accountID string) error
	MarkPasswordChangedFunc   func(ctx context.Context, accountID string) error
	RequirePasswordChangeFunc func(ctx context.Context, accountID string) error
}

func (m *MockSecuritySettingsRepository) Get(ctx context.Context, accountID string) (*models.SecuritySettings, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, accountID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSecuritySettingsRepository) RecordFailedLogin(ctx context.Context, accountID string) (int, *time.Time, error) {
	if m.RecordFailedLoginFunc != nil {
		return m.RecordFailedLoginFunc(ctx, accountID)
	}
	return 1, nil, nil
}

func (m *MockSecuritySettingsRepository) RecordLogin(ctx context.Context, accountID, ip, location string) error {
	if m.RecordLoginFunc != nil {
		return m.RecordLoginFunc(ctx, accountID, ip, location)
	}
	return nil
}

func (m *MockSecuritySettingsRepository) Unlock(ctx context.Context, accountID string) error {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, accountID)
	}
	return nil
}

func (m *MockSecuritySettingsRepository) StoreOTPChallenge(ctx context.Context, accountID, codeHash string, expiresAt time.Time) error {
	if m.StoreOTPChallengeFunc != nil {
		return m.StoreOTPChallengeFunc(ctx, accountID, codeHash, expiresAt)
	}
	return nil
}

func (m *MockSecuritySettingsRepository) IncrementOTPAttempts(ctx context.Context, accountID string) (int, error) {
	if m.IncrementOTPAttemptsFunc != nil {
		return m.IncrementOTPAttemptsFunc(ctx, accountID)
	}
	return 1, nil
}

func (m *MockSecuritySettingsRepository) ClearOTPChallenge(ctx context.Context, accountID string) error {
	if m.ClearOTPChallengeFunc != nil {
		return m.ClearOTPChallengeFunc(ctx, accountID)
	}
	return nil
}

func (m *MockSecuritySettingsRepository) BeginMFAEnrollment(ctx context.Context, accountID string, secretEnc, nonce []byte) (bool, error) {
	if m.BeginMFAEnrollmentFunc != nil {
		return m.BeginMFAEnrollmentFunc(ctx, accountID, secretEnc, nonce)
	}
	return true, nil
}

func (m *MockSecuritySettingsRepository) EnableMFA(ctx context.Context, accountID string) error {
	if m.EnableMFAFunc != nil {
		return m.EnableMFAFunc(ctx, accountID)
	}
	return nil
}

func (m *MockSecuritySettingsRepository) ResetMFA(ctx context.Context, accountID string) error {
	if m.ResetMFAFunc != nil {
		return m.ResetMFAFunc(ctx, accountID)
	}
	return nil
}

func (m *MockSecuritySettingsRepository) MarkPasswordChanged(ctx context.Context, accountID string) error {
	if m.MarkPasswordChangedFunc != nil {
		return m.MarkPasswordChangedFunc(ctx, accountID)
	}
	return nil
}

func (m *MockSecuritySettingsRepository) RequirePasswordChange(ctx context.Context, accountID string) error {
	if m.RequirePasswordChangeFunc != nil {
		return m.RequirePasswordChangeFunc(ctx, accountID)
	}
	return nil
}

// MockBlocklistChecker implements BlocklistChecker for testing
type MockBlocklistChecker struct {
	IsBlockedFunc func(ctx context.Context, address string) (bool, error)
}

func (m *MockBlocklistChecker) IsBlocked(ctx context.Context, address string) (bool, error) {
	if m.IsBlockedFunc != nil {
		return m.IsBlockedFunc(ctx, address)
	}
	return false, nil
}

// MockSecurityEventRepository implements SecurityEventRepository for testing.
// Appended events are retained for assertions.
type MockSecurityEventRepository struct {
	AppendFunc func(ctx context.Context, event *models.SecurityEvent) error
	ListFunc   func(ctx context.Context, filter repositories.EventFilter, limit, offset int) ([]*models.SecurityEvent, error)

	Events []*models.SecurityEvent
}

func (m *MockSecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, event)
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockSecurityEventRepository) List(ctx context.Context, filter repositories.EventFilter, limit, offset int) ([]*models.SecurityEvent, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter, limit, offset)
	}
	return m.Events, nil
}

// HasEvent reports whether an event of the given type was recorded.
func (m *MockSecurityEventRepository) HasEvent(eventType string) bool {
	for _, e := range m.Events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// MockRegistrationRepository implements RegistrationRepository for testing
type MockRegistrationRepository struct {
	UpsertChallengeFunc            func(ctx context.Context, c *models.RegistrationChallenge) error
	GetChallengeFunc               func(ctx context.Context, email string) (*models.RegistrationChallenge, error)
	IncrementChallengeAttemptsFunc func(ctx context.Context, email string) (int, error)
	DeleteChallengeFunc            func(ctx context.Context, email string) error
	CreateRequestFunc              func(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error)
	GetRequestFunc                 func(ctx context.Context, id string) (*models.RegistrationRequest, error)
	HasPendingRequestFunc          func(ctx context.Context, email string) (bool, error)
	HasApprovedRequestFunc         func(ctx context.Context, email string) (bool, error)
	ListRequestsFunc               func(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error)
	MarkReviewedFunc               func(ctx context.Context, id, status, reviewerID, rejectionReason string) (*models.RegistrationRequest, error)
}

func (m *MockRegistrationRepository) UpsertChallenge(ctx context.Context, c *models.RegistrationChallenge) error {
	if m.UpsertChallengeFunc != nil {
		return m.UpsertChallengeFunc(ctx, c)
	}
	return nil
}

func (m *MockRegistrationRepository) GetChallenge(ctx context.Context, email string) (*models.RegistrationChallenge, error) {
	if m.GetChallengeFunc != nil {
		return m.GetChallengeFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockRegistrationRepository) IncrementChallengeAttempts(ctx context.Context, email string) (int, error) {
	if m.IncrementChallengeAttemptsFunc != nil {
		return m.IncrementChallengeAttemptsFunc(ctx, email)
	}
	return 1, nil
}

func (m *MockRegistrationRepository) DeleteChallenge(ctx context.Context, email string) error {
	if m.DeleteChallengeFunc != nil {
		return m.DeleteChallengeFunc(ctx, email)
	}
	return nil
}

func (m *MockRegistrationRepository) CreateRequest(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationRequest, error) {
	if m.CreateRequestFunc != nil {
		return m.CreateRequestFunc(ctx, req)
	}
	req.ID = "new-request-id"
	req.Status = models.RequestStatusPending
	return req, nil
}

func (m *MockRegistrationRepository) GetRequest(ctx context.Context, id string) (*models.RegistrationRequest, error) {
	if m.GetRequestFunc != nil {
		return m.GetRequestFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockRegistrationRepository) HasPendingRequest(ctx context.Context, email string) (bool, error) {
	if m.HasPendingRequestFunc != nil {
		return m.HasPendingRequestFunc(ctx, email)
	}
	return false, nil
}

func (m *MockRegistrationRepository) HasApprovedRequest(ctx context.Context, email string) (bool, error) {
	if m.HasApprovedRequestFunc != nil {
		return m.HasApprovedRequestFunc(ctx, email)
	}
	return false, nil
}

func (m *MockRegistrationRepository) ListRequests(ctx context.Context, status string, limit, offset int) ([]*models.RegistrationRequest, error) {
	if m.ListRequestsFunc != nil {
		return m.ListRequestsFunc(ctx, status, limit, offset)
	}
	return []*models.RegistrationRequest{}, nil
}

func (m *MockRegistrationRepository) MarkReviewed(ctx context.Context, id, status, reviewerID, rejectionReason string) (*models.RegistrationRequest, error) {
	if m.MarkReviewedFunc != nil {
		return m.MarkReviewedFunc(ctx, id, status, reviewerID, rejectionReason)
	}
	return nil, models.ErrNotFound
}

// MockBlockedIPRepository implements BlockedIPRepository for testing
type MockBlockedIPRepository struct {
	IsBlockedFunc func(ctx context.Context, address string) (bool, error)
	BlockFunc     func(ctx context.Context, address, reason string, expiresAt *time.Time) (*models.BlockedIP, error)
	UnblockFunc   func(ctx context.Context, address string) error
	ListFunc      func(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error)
}

func (m *MockBlockedIPRepository) IsBlocked(ctx context.Context, address string) (bool, error) {
	if m.IsBlockedFunc != nil {
		return m.IsBlockedFunc(ctx, address)
	}
	return false, nil
}

func (m *MockBlockedIPRepository) Block(ctx context.Context, address, reason string, expiresAt *time.Time) (*models.BlockedIP, error) {
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, address, reason, expiresAt)
	}
	return &models.BlockedIP{Address: address, Reason: reason, ExpiresAt: expiresAt}, nil
}

func (m *MockBlockedIPRepository) Unblock(ctx context.Context, address string) error {
	if m.UnblockFunc != nil {
		return m.UnblockFunc(ctx, address)
	}
	return nil
}

func (m *MockBlockedIPRepository) List(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.BlockedIP{}, nil
}

// MockEmailSender implements EmailSender for testing. Sent codes and
// notices are retained for assertions.
type MockEmailSender struct {
	SendLoginCodeFunc        func(ctx context.Context, email, code string, expiry time.Duration) error
	SendRegistrationCodeFunc func(ctx context.Context, email, code string, expiry time.Duration) error
	SendApprovalNoticeFunc   func(ctx context.Context, email, tempPassword string) error
	SendRejectionNoticeFunc  func(ctx context.Context, email, reason string) error

	LoginCodes        map[string]string
	RegistrationCodes map[string]string
	Approvals         map[string]string
	Rejections        map[string]string
}

func (m *MockEmailSender) SendLoginCode(ctx context.Context, email, code string, expiry time.Duration) error {
	if m.SendLoginCodeFunc != nil {
		return m.SendLoginCodeFunc(ctx, email, code, expiry)
	}
	if m.LoginCodes == nil {
		m.LoginCodes = make(map[string]string)
	}
	m.LoginCodes[email] = code
	return nil
}

func (m *MockEmailSender) SendRegistrationCode(ctx context.Context, email, code string, expiry time.Duration) error {
	if m.SendRegistrationCodeFunc != nil {
		return m.SendRegistrationCodeFunc(ctx, email, code, expiry)
	}
	if m.RegistrationCodes == nil {
		m.RegistrationCodes = make(map[string]string)
	}
	m.RegistrationCodes[email] = code
	return nil
}

func (m *MockEmailSender) SendApprovalNotice(ctx context.Context, email, tempPassword string) error {
	if m.SendApprovalNoticeFunc != nil {
		return m.SendApprovalNoticeFunc(ctx, email, tempPassword)
	}
	if m.Approvals == nil {
		m.Approvals = make(map[string]string)
	}
	m.Approvals[email] = tempPassword
	return nil
}

func (m *MockEmailSender) SendRejectionNotice(ctx context.Context, email, reason string) error {
	if m.SendRejectionNoticeFunc != nil {
		return m.SendRejectionNoticeFunc(ctx, email, reason)
	}
	if m.Rejections == nil {
		m.Rejections = make(map[string]string)
	}
	m.Rejections[email] = reason
	return nil
}
