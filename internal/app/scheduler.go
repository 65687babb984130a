package app

import (
	"context"
	"time"
)

// runScheduler checks the backup schedule once at start and then every
// ScheduleCheckInterval until ctx is done.
func (a *App) runScheduler(ctx context.Context) {
	a.backupIfDue(ctx)

	interval := a.config.ScheduleCheckInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.backupIfDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// backupIfDue creates a snapshot backup when automatic backup is on and the
// schedule calls for one. It reports whether a backup file was written.
func (a *App) backupIfDue(ctx context.Context) bool {
	if !a.Backups.Settings().AutoBackup || !a.Backups.ShouldPerformBackup() {
		return false
	}

	path, err := a.Backups.CreateBackup(ctx, a.Snapshot(ctx))
	if path == "" {
		a.logger.Error(ctx, "scheduled backup failed", "error", err)
		return false
	}
	if err != nil {
		a.logger.Warn(ctx, "scheduled backup kept locally only", "path", path, "error", err)
	} else {
		a.logger.Info(ctx, "scheduled backup created", "path", path)
	}
	return true
}
