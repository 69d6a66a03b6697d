package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/nbenslimane/assurid/internal/models"
	pkglogger "github.com/nbenslimane/assurid/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInvalidator struct {
	invalidated []string
}

func (m *mockInvalidator) Invalidate(_ context.Context, address string) {
	m.invalidated = append(m.invalidated, address)
}

type adminEnv struct {
	accounts    *MockAccountRepository
	settings    *MockSecuritySettingsRepository
	blockedIPs  *MockBlockedIPRepository
	invalidator *mockInvalidator
	eventsRepo  *MockSecurityEventRepository
	svc         *AdminService
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()

	logger := slog.Default()
	env := &adminEnv{
		accounts:    &MockAccountRepository{},
		settings:    &MockSecuritySettingsRepository{},
		blockedIPs:  &MockBlockedIPRepository{},
		invalidator: &mockInvalidator{},
		eventsRepo:  &MockSecurityEventRepository{},
	}
	events := NewEventService(env.eventsRepo, logger, pkglogger.NewAuditLogger(logger))
	env.svc = NewAdminService(env.accounts, env.settings, env.blockedIPs, env.invalidator, events, logger)
	return env
}

func TestAdminService_UnlockAccount(t *testing.T) {
	env := newAdminEnv(t)

	unlocked := false
	env.settings.UnlockFunc = func(ctx context.Context, accountID string) error {
		unlocked = true
		return nil
	}

	err := env.svc.UnlockAccount(context.Background(), "acct-1", "admin-1", testClient())

	require.NoError(t, err)
	assert.True(t, unlocked)
	assert.True(t, env.eventsRepo.HasEvent(models.EventAccountUnlocked))
}

func TestAdminService_UnlockAccount_NotFound(t *testing.T) {
	env := newAdminEnv(t)
	env.settings.UnlockFunc = func(ctx context.Context, accountID string) error {
		return models.ErrNotFound
	}

	err := env.svc.UnlockAccount(context.Background(), "missing", "admin-1", testClient())

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminService_BlockIP_InvalidatesCache(t *testing.T) {
	env := newAdminEnv(t)

	expiry := time.Now().Add(24 * time.Hour)
	block, err := env.svc.BlockIP(context.Background(), "198.51.100.4", "credential stuffing", &expiry, "admin-1", testClient())

	require.NoError(t, err)
	assert.Equal(t, "198.51.100.4", block.Address)
	assert.Equal(t, []string{"198.51.100.4"}, env.invalidator.invalidated)
	assert.True(t, env.eventsRepo.HasEvent(models.EventIPBlocked))
}

func TestAdminService_BlockIP_EmptyAddress(t *testing.T) {
	env := newAdminEnv(t)

	_, err := env.svc.BlockIP(context.Background(), "", "reason", nil, "admin-1", testClient())

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAdminService_UnblockIP(t *testing.T) {
	env := newAdminEnv(t)

	err := env.svc.UnblockIP(context.Background(), "198.51.100.4", "admin-1", testClient())

	require.NoError(t, err)
	assert.Equal(t, []string{"198.51.100.4"}, env.invalidator.invalidated)
	assert.True(t, env.eventsRepo.HasEvent(models.EventIPUnblocked))
}

func TestAdminService_AssignRole_InvalidRole(t *testing.T) {
	env := newAdminEnv(t)

	err := env.svc.AssignRole(context.Background(), "acct-1", "superuser", "admin-1", testClient())

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAdminService_AssignRole(t *testing.T) {
	env := newAdminEnv(t)
	env.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		return &models.Account{ID: id}, nil
	}

	var granted string
	env.accounts.AddRoleFunc = func(ctx context.Context, id, role string) error {
		granted = role
		return nil
	}

	err := env.svc.AssignRole(context.Background(), "acct-1", models.RoleValidator, "admin-1", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.RoleValidator, granted)
	assert.True(t, env.eventsRepo.HasEvent(models.EventRoleChanged))
}

func TestAdminService_RevokeRole(t *testing.T) {
	env := newAdminEnv(t)

	var revoked string
	env.accounts.RemoveRoleFunc = func(ctx context.Context, id, role string) error {
		revoked = role
		return nil
	}

	err := env.svc.RevokeRole(context.Background(), "acct-1", models.RoleValidator, "admin-1", testClient())

	require.NoError(t, err)
	assert.Equal(t, models.RoleValidator, revoked)
}
