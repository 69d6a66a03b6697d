package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	internalauth "github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/services"
	pkghttp "github.com/nbenslimane/assurid/pkg/http"
)

// AdminServiceInterface defines the interface for administrative operations
type AdminServiceInterface interface {
	UnlockAccount(ctx context.Context, accountID, actorID string, client models.ClientContext) error
	BlockIP(ctx context.Context, address, reason string, expiresAt *time.Time, actorID string, client models.ClientContext) (*models.BlockedIP, error)
	UnblockIP(ctx context.Context, address, actorID string, client models.ClientContext) error
	ListBlockedIPs(ctx context.Context, limit, offset int) ([]*models.BlockedIP, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]*models.Account, error)
	AssignRole(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error
	RevokeRole(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error
}

// EventServiceInterface defines the interface for audit trail reads
type EventServiceInterface interface {
	List(ctx context.Context, q services.EventQuery) ([]*models.SecurityEvent, error)
}

// TemporaryPasswordIssuer covers the admin recovery path.
type TemporaryPasswordIssuer interface {
	IssueTemporaryPassword(ctx context.Context, accountID, actorID string, client models.ClientContext) (string, error)
}

// AdminHandler handles administrative HTTP requests
type AdminHandler struct {
	admin    AdminServiceInterface
	events   EventServiceInterface
	password TemporaryPasswordIssuer
	ipConfig *pkghttp.IPConfig
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(admin AdminServiceInterface, events EventServiceInterface, password TemporaryPasswordIssuer, ipConfig *pkghttp.IPConfig) *AdminHandler {
	return &AdminHandler{
		admin:    admin,
		events:   events,
		password: password,
		ipConfig: ipConfig,
	}
}

// BlockIPRequest represents the request body for adding a denylist entry
type BlockIPRequest struct {
	Address string `json:"address" validate:"required,ip"`
	Reason  string `json:"reason" validate:"required,min=3,max=500"`
	TTL     string `json:"ttl,omitempty"` // Go duration; empty blocks permanently
}

// RoleRequest represents the request body for role changes
type RoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// ListAccounts returns accounts for the admin console.
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	accounts, err := h.admin.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// UnlockAccount lifts a lockout ahead of its expiry.
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.admin.UnlockAccount(r.Context(), chi.URLParam(r, "id"), claims.AccountID, clientContext(r, h.ipConfig))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Account unlocked"})
}

// IssueTemporaryPassword replaces an account's credential for recovery.
func (h *AdminHandler) IssueTemporaryPassword(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	tempPassword, err := h.password.IssueTemporaryPassword(r.Context(), chi.URLParam(r, "id"), claims.AccountID, clientContext(r, h.ipConfig))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"temporary_password": tempPassword})
}

// AssignRole grants a role.
func (h *AdminHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.admin.AssignRole)
}

// RevokeRole removes a role.
func (h *AdminHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.admin.RevokeRole)
}

func (h *AdminHandler) changeRole(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, accountID, role, actorID string, client models.ClientContext) error) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := apply(r.Context(), chi.URLParam(r, "id"), req.Role, claims.AccountID, clientContext(r, h.ipConfig))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Unknown role")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account or role assignment not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Roles updated"})
}

// ListBlockedIPs returns the denylist.
func (h *AdminHandler) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	blocks, err := h.admin.ListBlockedIPs(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"blocked_ips": blocks})
}

// BlockIP adds a denylist entry.
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var expiresAt *time.Time
	if req.TTL != "" {
		ttl, err := time.ParseDuration(req.TTL)
		if err != nil || ttl <= 0 {
			pkghttp.WriteBadRequest(w, "ttl must be a positive duration")
			return
		}
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	block, err := h.admin.BlockIP(r.Context(), req.Address, req.Reason, expiresAt, claims.AccountID, clientContext(r, h.ipConfig))
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid address")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, block)
}

// UnblockIP removes a denylist entry.
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	claims := internalauth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	address := chi.URLParam(r, "address")
	if err := h.admin.UnblockIP(r.Context(), address, claims.AccountID, clientContext(r, h.ipConfig)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Address is not blocked")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Address unblocked"})
}

// ListEvents returns the audit trail for holders of the security events
// capability.
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q := services.EventQuery{
		AccountID: r.URL.Query().Get("account_id"),
		EventType: r.URL.Query().Get("event_type"),
		Severity:  r.URL.Query().Get("severity"),
		Limit:     limit,
		Offset:    offset,
	}

	events, err := h.events.List(r.Context(), q)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
