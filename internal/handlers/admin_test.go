package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nbenslimane/assurid/internal/handlers"
	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlockAccount_Success(t *testing.T) {
	mockAdmin := &handlers.MockAdminService{
		UnlockAccountFunc: func(ctx context.Context, accountID, actorID string, client models.ClientContext) error {
			assert.Equal(t, "acct-2", accountID)
			assert.Equal(t, "admin-1", actorID)
			return nil
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/accounts/acct-2/unlock", nil)
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")
	req = withRouteParam(req, "id", "acct-2")

	w := httptest.NewRecorder()
	handler.UnlockAccount(w, req)

	assert.Equal(t, 200, w.Code)
}

func TestUnlockAccount_NotFound(t *testing.T) {
	mockAdmin := &handlers.MockAdminService{
		UnlockAccountFunc: func(ctx context.Context, accountID, actorID string, client models.ClientContext) error {
			return models.ErrNotFound
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/accounts/missing/unlock", nil)
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")
	req = withRouteParam(req, "id", "missing")

	w := httptest.NewRecorder()
	handler.UnlockAccount(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestIssueTemporaryPassword_ReturnsPassword(t *testing.T) {
	mockPassword := &handlers.MockPasswordService{
		IssueTemporaryPasswordFunc: func(ctx context.Context, accountID, actorID string, client models.ClientContext) (string, error) {
			assert.Equal(t, "acct-2", accountID)
			return "Temp0rary!Passw0rd", nil
		},
	}

	handler := handlers.NewAdminHandler(&handlers.MockAdminService{}, &handlers.MockEventService{}, mockPassword, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/accounts/acct-2/temporary-password", nil)
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")
	req = withRouteParam(req, "id", "acct-2")

	w := httptest.NewRecorder()
	handler.IssueTemporaryPassword(w, req)

	var resp map[string]string
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "Temp0rary!Passw0rd", resp["temporary_password"])
}

func TestAssignRole_Success(t *testing.T) {
	var gotRole string
	mockAdmin := &handlers.MockAdminService{
		AssignRoleFunc: func(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error {
			gotRole = role
			return nil
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/accounts/acct-2/roles", handlers.RoleRequest{Role: "validator"})
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")
	req = withRouteParam(req, "id", "acct-2")

	w := httptest.NewRecorder()
	handler.AssignRole(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "validator", gotRole)
}

func TestAssignRole_UnknownRole(t *testing.T) {
	mockAdmin := &handlers.MockAdminService{
		AssignRoleFunc: func(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error {
			return models.ErrBadRequest
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/accounts/acct-2/roles", handlers.RoleRequest{Role: "emperor"})
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")
	req = withRouteParam(req, "id", "acct-2")

	w := httptest.NewRecorder()
	handler.AssignRole(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestRevokeRole_AssignmentNotFound(t *testing.T) {
	mockAdmin := &handlers.MockAdminService{
		RevokeRoleFunc: func(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error {
			return models.ErrNotFound
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "DELETE", "/admin/accounts/acct-2/roles", handlers.RoleRequest{Role: "user"})
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")
	req = withRouteParam(req, "id", "acct-2")

	w := httptest.NewRecorder()
	handler.RevokeRole(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestBlockIP_Permanent(t *testing.T) {
	mockAdmin := &handlers.MockAdminService{
		BlockIPFunc: func(ctx context.Context, address, reason string, expiresAt *time.Time, actorID string, client models.ClientContext) (*models.BlockedIP, error) {
			assert.Equal(t, "198.51.100.7", address)
			assert.Nil(t, expiresAt)
			return &models.BlockedIP{Address: address, Reason: reason}, nil
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/blocked-ips", handlers.BlockIPRequest{
		Address: "198.51.100.7",
		Reason:  "credential stuffing source",
	})
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")

	w := httptest.NewRecorder()
	handler.BlockIP(w, req)

	assert.Equal(t, 201, w.Code)
}

func TestBlockIP_WithTTL(t *testing.T) {
	var gotExpiry *time.Time
	mockAdmin := &handlers.MockAdminService{
		BlockIPFunc: func(ctx context.Context, address, reason string, expiresAt *time.Time, actorID string, client models.ClientContext) (*models.BlockedIP, error) {
			gotExpiry = expiresAt
			return &models.BlockedIP{Address: address, Reason: reason, ExpiresAt: expiresAt}, nil
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/blocked-ips", handlers.BlockIPRequest{
		Address: "198.51.100.7",
		Reason:  "credential stuffing source",
		TTL:     "24h",
	})
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")

	w := httptest.NewRecorder()
	handler.BlockIP(w, req)

	assert.Equal(t, 201, w.Code)
	require.NotNil(t, gotExpiry)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *gotExpiry, time.Minute)
}

func TestBlockIP_InvalidTTL(t *testing.T) {
	handler := handlers.NewAdminHandler(&handlers.MockAdminService{}, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/blocked-ips", handlers.BlockIPRequest{
		Address: "198.51.100.7",
		Reason:  "credential stuffing source",
		TTL:     "tomorrow",
	})
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")

	w := httptest.NewRecorder()
	handler.BlockIP(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestBlockIP_InvalidAddress(t *testing.T) {
	handler := handlers.NewAdminHandler(&handlers.MockAdminService{}, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/admin/blocked-ips", handlers.BlockIPRequest{
		Address: "not-an-ip",
		Reason:  "credential stuffing source",
	})
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")

	w := httptest.NewRecorder()
	handler.BlockIP(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestUnblockIP_NotBlocked(t *testing.T) {
	mockAdmin := &handlers.MockAdminService{
		UnblockIPFunc: func(ctx context.Context, address, actorID string, client models.ClientContext) error {
			return models.ErrNotFound
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "DELETE", "/admin/blocked-ips/198.51.100.7", nil)
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")
	req = withRouteParam(req, "address", "198.51.100.7")

	w := httptest.NewRecorder()
	handler.UnblockIP(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestListAccounts_Paginated(t *testing.T) {
	var gotLimit, gotOffset int
	mockAdmin := &handlers.MockAdminService{
		ListAccountsFunc: func(ctx context.Context, limit, offset int) ([]*models.Account, error) {
			gotLimit, gotOffset = limit, offset
			return []*models.Account{
				{ID: "acct-1", Email: "agent@assurnet.tn", Name: "Amal Gharbi", Roles: []string{"user"}},
			}, nil
		},
	}

	handler := handlers.NewAdminHandler(mockAdmin, &handlers.MockEventService{}, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/admin/accounts?limit=25&offset=50", nil)
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")

	w := httptest.NewRecorder()
	handler.ListAccounts(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, 25, gotLimit)
	assert.Equal(t, 50, gotOffset)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "accounts")
	assert.NotContains(t, string(resp["accounts"]), "password")
}

func TestListEvents_ForwardsFilters(t *testing.T) {
	var gotQuery services.EventQuery
	mockEvents := &handlers.MockEventService{
		ListFunc: func(ctx context.Context, q services.EventQuery) ([]*models.SecurityEvent, error) {
			gotQuery = q
			return []*models.SecurityEvent{}, nil
		},
	}

	handler := handlers.NewAdminHandler(&handlers.MockAdminService{}, mockEvents, &handlers.MockPasswordService{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/admin/events?account_id=acct-1&event_type=login_failure&severity=warning&limit=10", nil)
	req = handlers.WithAuthContext(req, "admin-1", "admin@assurnet.tn")

	w := httptest.NewRecorder()
	handler.ListEvents(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "acct-1", gotQuery.AccountID)
	assert.Equal(t, "login_failure", gotQuery.EventType)
	assert.Equal(t, "warning", gotQuery.Severity)
	assert.Equal(t, 10, gotQuery.Limit)
}

var (
	_ handlers.AdminServiceInterface = (*handlers.MockAdminService)(nil)
	_ handlers.EventServiceInterface = (*handlers.MockEventService)(nil)
)
