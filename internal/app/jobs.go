/**
 * @description
 * Scheduled job implementations for the scheduler binary.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// SyncRunner is the account-sync surface the bulk job depends on.
type SyncRunner interface {
	SyncAccount(ctx context.Context, identityID string) (*SyncResult, error)
}

// ProfileLister enumerates profiles that hold a connected account.
type ProfileLister interface {
	ListIdentityIDsWithConnectedAccounts(ctx context.Context) ([]string, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	profiles ProfileLister
	sync     SyncRunner
	logger   *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(profiles ProfileLister, sync SyncRunner, logger *slog.Logger) *Jobs {
	return &Jobs{
		profiles: profiles,
		sync:     sync,
		logger:   logger,
	}
}

// SyncConnectedAccounts mirrors provider account state for every profile
// holding a connected account. Each account is processed and persisted
// independently: a failure is logged and skipped, never aborting the batch.
func (j *Jobs) SyncConnectedAccounts() {
	j.logger.Info("starting connected account sync job")
	ctx := context.Background()

	identityIDs, err := j.profiles.ListIdentityIDsWithConnectedAccounts(ctx)
	if err != nil {
		j.logger.Error("failed to list connected accounts", "error", err)
		return
	}

	if len(identityIDs) == 0 {
		j.logger.Info("no connected accounts to sync")
		return
	}

	j.logger.Info("found connected accounts to sync", "count", len(identityIDs))

	var synced, failed int
	for _, identityID := range identityIDs {
		syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		result, err := j.sync.SyncAccount(syncCtx, identityID)
		cancel()
		if err != nil {
			failed++
			j.logger.Error("failed to sync connected account", "identity_id", identityID, "error", err)
			continue
		}
		synced++
		j.logger.Info("synced connected account", "identity_id", identityID, "status", result.AccountStatus)
	}

	j.logger.Info("connected account sync job finished", "synced", synced, "failed", failed)
}
