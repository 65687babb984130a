// Package app wires bizkeeper together: storage, encryption, connectivity,
// the offline queue, backups and the background workers that drive them.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/bizkeeper/internal/backup"
	"github.com/dmitrijs2005/bizkeeper/internal/config"
	"github.com/dmitrijs2005/bizkeeper/internal/credstore"
	"github.com/dmitrijs2005/bizkeeper/internal/dbx"
	"github.com/dmitrijs2005/bizkeeper/internal/encryption"
	"github.com/dmitrijs2005/bizkeeper/internal/filex"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/dmitrijs2005/bizkeeper/internal/migrations/local"
	"github.com/dmitrijs2005/bizkeeper/internal/netstatus"
	"github.com/dmitrijs2005/bizkeeper/internal/objectstore"
	"github.com/dmitrijs2005/bizkeeper/internal/offline"
	"github.com/dmitrijs2005/bizkeeper/internal/remote"
	"github.com/dmitrijs2005/bizkeeper/internal/repositories/kv"
	"github.com/dmitrijs2005/bizkeeper/internal/share"
)

// errNoRemote is returned by replay handlers when no remote database is
// configured, so queued changes stay pending instead of being dropped.
var errNoRemote = errors.New("remote database is not configured")

// Test seams.
var (
	newHealthProvider = func(addr string) (healthProvider, error) {
		return netstatus.NewGRPCHealthProvider(addr)
	}
	newCloudStore = func(ctx context.Context, c objectstore.S3Config) (objectstore.Store, error) {
		return objectstore.NewS3Store(ctx, c)
	}
	openRemote = remote.Open
)

type healthProvider interface {
	netstatus.Provider
	Close() error
}

// App owns every long-lived component. Build it with NewApp and release it
// with Close.
type App struct {
	config *config.Config
	logger logging.Logger

	db       *sql.DB
	remoteDB *sql.DB
	creds    *credstore.FileStore
	health   healthProvider

	Encryption *encryption.Service
	Monitor    *netstatus.Monitor
	Offline    *offline.Store
	Backups    *backup.Service
	Sink       *remote.Sink
}

// NewApp opens local storage, unlocks the credential store with passphrase
// and constructs the services. Cloud backups and remote replay are enabled
// only when configured.
func NewApp(ctx context.Context, c *config.Config, passphrase []byte) (*App, error) {
	a := &App{config: c, logger: logging.New(os.Stderr, c.Verbose)}

	if err := a.init(ctx, passphrase); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, passphrase []byte) error {
	c := a.config
	fs := filex.NewOSFileSystem()

	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return fmt.Errorf("data dir init error: %w", err)
	}

	db, err := dbx.OpenSQLite(ctx, c.LocalDSN(), local.Migrations)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	a.db = db
	repo := kv.NewSQLiteRepository(db)

	creds, err := credstore.OpenFileStore(c.CredentialsPath(), passphrase)
	if err != nil {
		return fmt.Errorf("credential store init error: %w", err)
	}
	a.creds = creds

	a.Encryption = encryption.NewService(creds, a.logger)
	if err := a.Encryption.Initialize(ctx); err != nil {
		return err
	}

	health, err := newHealthProvider(c.HealthEndpointAddr)
	if err != nil {
		return err
	}
	a.health = health
	a.Monitor = netstatus.NewMonitor(health, c.OnlineCheckInterval, a.logger)

	handlers := unconfiguredHandlers()
	if c.RemoteDSN != "" {
		rdb, err := openRemote(ctx, c.RemoteDSN)
		if err != nil {
			return fmt.Errorf("remote db init error: %w", err)
		}
		a.remoteDB = rdb
		a.Sink = remote.NewSink(rdb, a.logger)
		handlers = a.Sink.Handlers()
	}

	a.Offline = offline.NewStore(repo, a.Encryption, boundedProvider(health), handlers, a.logger)

	deps := backup.Deps{
		FS:        fs,
		Encryptor: a.Encryption,
		Settings:  repo,
		Logger:    a.logger,
	}
	if c.S3Bucket != "" {
		cloud, err := newCloudStore(ctx, objectstore.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
			Timeout:      c.RemoteTimeout,
		})
		if err != nil {
			return fmt.Errorf("object store init error: %w", err)
		}
		deps.Cloud = cloud
	}
	if c.ShareDir != "" {
		deps.Sharer = share.NewDirectorySharer(c.ShareDir, fs)
	}

	a.Backups = backup.NewService(ctx, c.BackupDir(), deps)
	return a.Backups.Initialize(ctx)
}

// boundedProvider caps each direct connectivity check at netstatus.CheckTimeout.
func boundedProvider(p netstatus.Provider) netstatus.Provider {
	return netstatus.ProviderFunc(func(ctx context.Context) (netstatus.Status, error) {
		ctx, cancel := context.WithTimeout(ctx, netstatus.CheckTimeout)
		defer cancel()
		return p.FetchStatus(ctx)
	})
}

func unconfiguredHandlers() offline.HandlerTable {
	t := make(offline.HandlerTable, len(remote.Entities))
	for _, entity := range remote.Entities {
		t[entity] = func(context.Context, offline.QueueEntry) error { return errNoRemote }
	}
	return t
}

// Close releases databases, the credential store and the health client.
func (a *App) Close() {
	ctx := context.Background()
	if a.health != nil {
		if err := a.health.Close(); err != nil {
			a.logger.Warn(ctx, "error closing health client", "error", err)
		}
	}
	if a.creds != nil {
		if err := a.creds.Close(); err != nil {
			a.logger.Warn(ctx, "error closing credential store", "error", err)
		}
	}
	if a.remoteDB != nil {
		if err := a.remoteDB.Close(); err != nil {
			a.logger.Warn(ctx, "error closing remote db", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn(ctx, "error closing db", "error", err)
		}
	}
}

// Logger returns the application logger.
func (a *App) Logger() logging.Logger { return a.logger }

func (a *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run starts the connectivity monitor, the offline sync worker and the
// backup scheduler, then runs foreground until it returns or a termination
// signal arrives. Background workers are stopped before Run returns.
func (a *App) Run(ctx context.Context, foreground func(ctx context.Context) error) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	a.logger.Info(ctx, "Starting app...")
	a.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Monitor.Run(ctx)
	}()

	syncDone := a.Offline.InitializeOfflineStorage(ctx, a.Monitor)

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runScheduler(ctx)
	}()

	err := foreground(ctx)
	cancelFunc()
	wg.Wait()
	<-syncDone

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
