package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/bizkeeper/internal/app"
	"github.com/dmitrijs2005/bizkeeper/internal/backup"
	"github.com/dmitrijs2005/bizkeeper/internal/netstatus"
	"github.com/dmitrijs2005/bizkeeper/internal/offline"
	"github.com/dmitrijs2005/bizkeeper/internal/remote"
)

type backupService interface {
	Dir() string
	CreateBackup(ctx context.Context, data any) (string, error)
	ListBackups(ctx context.Context) (backup.Listing, error)
	VerifyBackup(ctx context.Context, path string) bool
	ShareBackup(ctx context.Context, path string) error
	DownloadFromCloud(ctx context.Context, name string) (string, error)
	CleanupOldBackups(ctx context.Context) error
	Settings() backup.Settings
	UpdateSettings(ctx context.Context, patch backup.SettingsPatch) error
}

type queueService interface {
	PendingChanges(ctx context.Context) []offline.QueueEntry
	SyncOfflineChanges(ctx context.Context) (offline.SyncResult, error)
	CheckConnectivity(ctx context.Context) bool
}

type dataService interface {
	Snapshot(ctx context.Context) app.Snapshot
	RestoreSnapshot(ctx context.Context, path string) (app.RestoreResult, error)
	RecordChange(ctx context.Context, entity string, data json.RawMessage) error
	Recent(ctx context.Context, entity string) ([]remote.Record, error)
	RotateKey(ctx context.Context) error
}

type statusSource interface {
	Current() netstatus.Status
}

// App is the interactive front end over the application services.
type App struct {
	backups backupService
	queue   queueService
	data    dataService
	status  statusSource

	in io.Reader
}

// New builds the REPL over a, reading commands from in.
func New(a *app.App, in io.Reader) *App {
	return &App{
		backups: a.Backups,
		queue:   a.Offline,
		data:    a,
		status:  a.Monitor,
		in:      in,
	}
}

func (a *App) getStatus() string {
	return string(a.status.Current().Mode())
}

// Run starts the REPL and blocks until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	printlnFn("Welcome to bizkeeper (type 'help' for commands)")

	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.in))
	}()

	// A pending read on a terminal cannot be interrupted; stop waiting for
	// it once ctx is done.
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

// backupPath resolves a bare file name against the backup directory.
func (a *App) backupPath(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(a.backups.Dir(), name)
}

// fileArg returns the backup path named by args[0].
func (a *App) fileArg(args []string, usage string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		printlnFn("Usage:", usage)
		return "", ErrUsage
	}
	return a.backupPath(args[0]), nil
}
