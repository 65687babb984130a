package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "pgx"
)

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseUpContext is swapped in tests.
var gooseUpContext = goose.UpContext

// Migrate applies every pending migration found at the root of fsys.
func Migrate(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect %q: %w", dialect, err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// OpenSQLite opens the SQLite database at dsn and brings its schema up to
// date. SQLite serializes writers, so the pool is limited to one connection;
// this also keeps ":memory:" databases consistent across calls.
func OpenSQLite(ctx context.Context, dsn string, migrations fs.FS) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := Migrate(ctx, db, DialectSQLite, migrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
