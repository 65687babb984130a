// Package server runs bizkeeperd: it prepares the remote change database
// schema and serves the gRPC health endpoint clients check for connectivity.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/dmitrijs2005/bizkeeper/internal/remote"
	"github.com/dmitrijs2005/bizkeeper/internal/server/config"

	gs "github.com/dmitrijs2005/bizkeeper/internal/server/grpc"
)

// openDB is a test seam.
var openDB = remote.Open

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	return &App{config: c, logger: logger, db: db}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "error closing db", "error", err)
		}
	}()

	s := gs.NewHealthServer(app.config.EndpointAddrGRPC, app.logger, app.db, app.config.CheckInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}
	return nil
}
