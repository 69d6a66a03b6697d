package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nbenslimane/assurid/internal/auth"
	"github.com/nbenslimane/assurid/internal/background"
	"github.com/nbenslimane/assurid/internal/cache"
	"github.com/nbenslimane/assurid/internal/config"
	"github.com/nbenslimane/assurid/internal/database"
	"github.com/nbenslimane/assurid/internal/handlers"
	middlewareCustom "github.com/nbenslimane/assurid/internal/middleware"
	"github.com/nbenslimane/assurid/internal/models"
	"github.com/nbenslimane/assurid/internal/repositories"
	"github.com/nbenslimane/assurid/internal/routes"
	"github.com/nbenslimane/assurid/internal/services"
	pkgauth "github.com/nbenslimane/assurid/pkg/auth"
	pkghttp "github.com/nbenslimane/assurid/pkg/http"
	pkglogger "github.com/nbenslimane/assurid/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	accountRepo := repositories.NewAccountRepository(db)
	settingsRepo := repositories.NewSecuritySettingsRepository(db)
	registrationRepo := repositories.NewRegistrationRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)
	blockedIPRepo := repositories.NewBlockedIPRepository(db)

	// Token and TOTP managers
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	totpManager, err := auth.NewTOTPManager([]byte(cfg.Auth.TOTPEncryptionKey), cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Outbound email
	var emailSender services.EmailSender
	switch cfg.Email.Provider {
	case "smtp":
		emailSender = services.NewSMTPEmailSender(
			cfg.Email.SMTPHost, cfg.Email.SMTPPort,
			cfg.Email.SMTPUser, cfg.Email.SMTPPass,
			cfg.Email.FromAddress, logger,
		)
	default:
		emailSender, err = services.NewAWSSESEmailSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email sender", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Blocked-IP reads go through Redis when configured, straight to the
	// database otherwise.
	var blocklist services.BlocklistChecker = blockedIPRepo
	var invalidator services.BlocklistInvalidator
	if cfg.Redis.Addr != "" {
		blockCache, err := cache.NewBlocklistCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, blockedIPRepo, logger)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer blockCache.Close()
		blocklist = blockCache
		invalidator = blockCache
	}

	// Services
	auditLogger := pkglogger.NewAuditLogger(logger)
	eventService := services.NewEventService(eventRepo, logger, auditLogger)
	otpService := services.NewOTPService(accountRepo, settingsRepo, totpManager, emailSender, eventService, logger)
	loginService := services.NewLoginService(accountRepo, settingsRepo, blocklist, tokenManager, otpService, eventService, logger)
	registrationService := services.NewRegistrationService(registrationRepo, accountRepo, settingsRepo, emailSender, eventService, logger)
	passwordService := services.NewPasswordService(accountRepo, settingsRepo, otpService, eventService, logger)
	adminService := services.NewAdminService(accountRepo, settingsRepo, blockedIPRepo, invalidator, eventService, logger)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(loginService, passwordService, tokenManager, ipConfig)
	mfaHandler := handlers.NewMFAHandler(otpService, ipConfig)
	registrationHandler := handlers.NewRegistrationHandler(registrationService, ipConfig)
	adminHandler := handlers.NewAdminHandler(adminService, eventService, passwordService, ipConfig)

	// Bootstrap the first privileged account if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureRootAdmin(ctx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure root admin account", slog.Any("error", err))
	}
	cancel()

	cleanupManager := background.NewCleanupManager(settingsRepo, registrationRepo, blockedIPRepo, logger, cfg.Auth.CleanupInterval)

	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, mfaHandler, registrationHandler, adminHandler, tokenManager, accountRepo)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		stats := db.Stats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","database":"up","pool_total":%d,"pool_idle":%d}`,
			stats.TotalConns(), stats.IdleConns())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureRootAdmin creates the first admin_superieur account when
// ADMIN_EMAIL and ADMIN_PASSWORD are set. Without it a fresh deployment
// has no one able to review registration requests.
func ensureRootAdmin(ctx context.Context, accountRepo *repositories.AccountRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping root admin creation")
		return nil
	}

	_, err := accountRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("root admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check for root admin: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash root admin password: %w", err)
	}

	admin := &models.Account{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Administrateur",
		Roles:        []string{models.RoleAdminSuperieur},
	}

	if _, err := accountRepo.Create(ctx, admin, false); err != nil {
		return fmt.Errorf("failed to create root admin account: %w", err)
	}

	logger.Info("root admin account created", slog.String("email", pkglogger.SanitizedEmail(adminEmail)))
	return nil
}
