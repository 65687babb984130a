package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/backup"
	"github.com/dmitrijs2005/bizkeeper/internal/common"
)

func (a *App) Backup(ctx context.Context) error {
	path, err := a.backups.CreateBackup(ctx, a.data.Snapshot(ctx))
	switch {
	case path == "":
		printlnFn("Error:", err)
		return err
	case errors.Is(err, common.ErrCloudUpload):
		printlnFn("Backup saved locally at", path, "but the cloud upload failed:", err)
		return err
	case err != nil:
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Backup created:", path)
	return nil
}

func (a *App) List(ctx context.Context) error {
	l, err := a.backups.ListBackups(ctx)

	printlnFn(fmt.Sprintf("Local backups (%d):", len(l.Local)))
	for _, name := range l.Local {
		printlnFn("  " + name)
	}
	if len(l.Cloud) > 0 {
		printlnFn(fmt.Sprintf("Cloud backups (%d):", len(l.Cloud)))
		for _, name := range l.Cloud {
			printlnFn("  " + name)
		}
	}
	if err != nil {
		printlnFn("Error:", err)
	}
	return err
}

func (a *App) Restore(ctx context.Context, args []string) error {
	path, err := a.fileArg(args, "restore <file>")
	if err != nil {
		return err
	}
	res, err := a.data.RestoreSnapshot(ctx, path)
	if err != nil {
		printlnFn("Restore failed:", err)
		return err
	}
	printlnFn(fmt.Sprintf("Restored %d cached entities, requeued %d changes", res.Entities, res.Requeued))
	return nil
}

func (a *App) Verify(ctx context.Context, args []string) error {
	path, err := a.fileArg(args, "verify <file>")
	if err != nil {
		return err
	}
	if !a.backups.VerifyBackup(ctx, path) {
		printlnFn("Backup is corrupted or cannot be decrypted:", path)
		return common.ErrInvalidBackup
	}
	printlnFn("Backup is valid:", path)
	return nil
}

func (a *App) Share(ctx context.Context, args []string) error {
	path, err := a.fileArg(args, "share <file>")
	if err != nil {
		return err
	}
	if err := a.backups.ShareBackup(ctx, path); err != nil {
		if errors.Is(err, common.ErrSharingUnavailable) {
			printlnFn("Sharing is not available; configure a share directory with -o")
		} else {
			printlnFn("Error:", err)
		}
		return err
	}
	printlnFn("Backup shared:", path)
	return nil
}

func (a *App) Fetch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: fetch <file>")
		return ErrUsage
	}
	path, err := a.backups.DownloadFromCloud(ctx, args[0])
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Backup downloaded:", path)
	return nil
}

func (a *App) Prune(ctx context.Context) error {
	if err := a.backups.CleanupOldBackups(ctx); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Old backups removed")
	return nil
}

func (a *App) Settings(ctx context.Context, args []string) error {
	if len(args) > 0 {
		patch, err := parseSettingsArgs(args)
		if err != nil {
			printlnFn("Error:", err)
			return err
		}
		if err := a.backups.UpdateSettings(ctx, patch); err != nil {
			printlnFn("Error:", err)
			return err
		}
	}

	s := a.backups.Settings()
	last := "never"
	if s.LastBackupDate != nil {
		last = s.LastBackupDate.Local().Format(time.DateTime)
	}
	printlnFn(fmt.Sprintf("auto=%t encrypt=%t retention=%d max=%d schedule=%s last=%s",
		s.AutoBackup, s.EncryptBackups, s.RetentionDays, s.MaxBackups, s.BackupSchedule, last))
	return nil
}

// parseSettingsArgs turns key=value pairs into a settings patch.
func parseSettingsArgs(args []string) (backup.SettingsPatch, error) {
	var p backup.SettingsPatch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return p, fmt.Errorf("%w: expected key=value, got %q", ErrUsage, arg)
		}
		switch key {
		case "auto", "encrypt":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return p, fmt.Errorf("%w: %s must be true or false", ErrUsage, key)
			}
			if key == "auto" {
				p.AutoBackup = &b
			} else {
				p.EncryptBackups = &b
			}
		case "retention", "max":
			n, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("%w: %s must be a number", ErrUsage, key)
			}
			if key == "retention" {
				p.RetentionDays = &n
			} else {
				p.MaxBackups = &n
			}
		case "schedule":
			sch := backup.Schedule(value)
			if _, ok := sch.Interval(); !ok {
				return p, fmt.Errorf("%w: schedule must be daily, weekly or monthly", ErrUsage)
			}
			p.BackupSchedule = &sch
		default:
			return p, fmt.Errorf("%w: unknown setting %q", ErrUsage, key)
		}
	}
	return p, nil
}

func (a *App) Queue(ctx context.Context) error {
	pending := a.queue.PendingChanges(ctx)
	printlnFn(fmt.Sprintf("Pending changes: %d", len(pending)))
	for _, e := range pending {
		printlnFn(fmt.Sprintf("  %s %-10s %s %s", e.Timestamp.Local().Format(time.DateTime), e.Type, e.ID, e.Data))
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if !a.queue.CheckConnectivity(ctx) {
		printlnFn("Offline: changes stay queued until the connection is back")
		return nil
	}
	res, err := a.queue.SyncOfflineChanges(ctx)
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn(fmt.Sprintf("Synced: %d processed, %d failed, %d dropped", res.Processed, res.Failed, res.Dropped))
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st := a.status.Current()
	printlnFn(fmt.Sprintf("Mode: %s (connected=%t, reachable=%t), pending changes: %d",
		st.Mode(), st.Connected, st.InternetReachable, len(a.queue.PendingChanges(ctx))))
	return nil
}

func (a *App) RotateKey(ctx context.Context) error {
	if err := a.data.RotateKey(ctx); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Encryption key rotated. Encrypted backups made before now can no longer be restored.")
	return nil
}

func (a *App) Record(ctx context.Context, args []string) error {
	if len(args) < 2 {
		printlnFn("Usage: record <entity> <json>")
		return ErrUsage
	}
	if err := a.data.RecordChange(ctx, args[0], json.RawMessage(args[1])); err != nil {
		printlnFn("Error:", err)
		return err
	}
	printlnFn("Change queued")
	return nil
}

func (a *App) Recent(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printlnFn("Usage: recent <entity>")
		return ErrUsage
	}
	recs, err := a.data.Recent(ctx, args[0])
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	if len(recs) == 0 {
		printlnFn("No data")
		return nil
	}
	for _, r := range recs {
		printlnFn(fmt.Sprintf("  %s %s %s", r.OccurredAt.Local().Format(time.DateTime), r.ChangeID, r.Payload))
	}
	return nil
}
