package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/nbenslimane/assurid/internal/repositories"
)

// CleanupManager periodically removes expired ephemeral state: spent OTP
// challenges, stale registration challenges and lapsed IP blocks. Audit
// events are deliberately never touched; retention there is an external
// concern.
type CleanupManager struct {
	settings      *repositories.SecuritySettingsRepository
	registrations *repositories.RegistrationRepository
	blockedIPs    *repositories.BlockedIPRepository
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	settings *repositories.SecuritySettingsRepository,
	registrations *repositories.RegistrationRepository,
	blockedIPs *repositories.BlockedIPRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		settings:      settings,
		registrations: registrations,
		blockedIPs:    blockedIPs,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	if n, err := cm.settings.PurgeExpiredOTPChallenges(cleanupCtx, now); err != nil {
		cm.logger.Error("failed to purge expired login codes", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("purged expired login codes", slog.Int64("rows", n))
	}

	if n, err := cm.registrations.PurgeExpiredChallenges(cleanupCtx, now); err != nil {
		cm.logger.Error("failed to purge expired registration challenges", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("purged expired registration challenges", slog.Int64("rows", n))
	}

	if n, err := cm.blockedIPs.PurgeExpired(cleanupCtx, now); err != nil {
		cm.logger.Error("failed to purge lapsed IP blocks", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("purged lapsed IP blocks", slog.Int64("rows", n))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
