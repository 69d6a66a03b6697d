package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/handlers"
	"github.com/nbenslimane/assurid/internal/middleware"
	"github.com/nbenslimane/assurid/internal/repositories"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	registrationHandler *handlers.RegistrationHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	accountRepo *repositories.AccountRepository,
) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	registrationLimit := middleware.RateLimitByIP(middleware.DefaultRegistrationRateLimit())

	// Public routes - no authentication required
	router.With(authLimit).Post("/auth/login", authHandler.Login)
	router.With(authLimit).Post("/auth/mfa/verify", authHandler.VerifyMFA)
	router.With(authLimit).Post("/auth/refresh", authHandler.Refresh)

	// Password change is reachable both mid-rotation (challenge token in
	// the body, no session yet) and from a live session. The handler
	// resolves the subject either way.
	router.With(authLimit).Post("/auth/password/code", authHandler.RequestPasswordChangeCode)
	router.With(authLimit).Post("/auth/password/change", authHandler.ChangePassword)

	router.With(registrationLimit).Post("/registration/code", registrationHandler.RequestCode)
	router.With(registrationLimit).Post("/registration/submit", registrationHandler.Submit)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		// Any authenticated account manages its own second factor.
		r.Post("/mfa/enroll", mfaHandler.BeginEnrollment)
		r.Post("/mfa/confirm", mfaHandler.ConfirmEnrollment)
		r.Post("/mfa/reset", mfaHandler.Reset)

		// Registration review queue.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePolicy(accountRepo, auth.CapRegistrationReview))
			r.Get("/admin/registrations", registrationHandler.List)
			r.Get("/admin/registrations/{id}", registrationHandler.Get)
			r.Post("/admin/registrations/{id}/approve", registrationHandler.Approve)
			r.Post("/admin/registrations/{id}/reject", registrationHandler.Reject)
		})

		// Audit trail reads.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePolicy(accountRepo, auth.CapSecurityEvents))
			r.Get("/admin/events", adminHandler.ListEvents)
		})

		// Account administration.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePolicy(accountRepo, auth.CapAccountAdmin))
			r.Get("/admin/accounts", adminHandler.ListAccounts)
			r.Post("/admin/accounts/{id}/unlock", adminHandler.UnlockAccount)
			r.Post("/admin/accounts/{id}/temporary-password", adminHandler.IssueTemporaryPassword)
			r.Post("/admin/accounts/{id}/roles", adminHandler.AssignRole)
			r.Delete("/admin/accounts/{id}/roles", adminHandler.RevokeRole)
			r.Get("/admin/blocked-ips", adminHandler.ListBlockedIPs)
			r.Post("/admin/blocked-ips", adminHandler.BlockIP)
			r.Delete("/admin/blocked-ips/{address}", adminHandler.UnblockIP)
		})

		// MFA reset on behalf of another account.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePolicy(accountRepo, auth.CapMFAReset))
			r.Post("/admin/accounts/{id}/mfa/reset", mfaHandler.AdminReset)
		})
	})
}
