// Package remote is the server-side destination for replayed offline
// changes: a Postgres database reached through pgx.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/dbx"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/dmitrijs2005/bizkeeper/internal/migrations/remote"
	"github.com/dmitrijs2005/bizkeeper/internal/offline"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Business entities that can be changed offline.
const (
	EntityProduction = "production"
	EntityRevenue    = "revenue"
	EntityExpense    = "expense"
	EntityEmployee   = "employee"
)

// Entities lists every entity with a default handler.
var Entities = []string{EntityProduction, EntityRevenue, EntityExpense, EntityEmployee}

// Record is one applied change as stored remotely.
type Record struct {
	ChangeID   string          `json:"changeId"`
	Entity     string          `json:"entity"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Open connects to Postgres and applies the sink schema.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := dbx.Migrate(ctx, db, dbx.DialectPostgres, remote.Migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

type Sink struct {
	db     *sql.DB
	logger logging.Logger
	newID  func() uuid.UUID
}

func NewSink(db *sql.DB, logger logging.Logger) *Sink {
	return &Sink{db: db, logger: logger, newID: uuid.New}
}

// Apply stores e for entity. Replaying a change that was already applied is
// a no-op, so a retried sync cannot double count.
func (s *Sink) Apply(ctx context.Context, entity string, e offline.QueueEntry) error {
	payload := []byte(e.Data)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("change %s: payload is not valid JSON", e.ID)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO business_changes (id, change_id, entity, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (entity, change_id) DO NOTHING`,
			s.newID().String(), e.ID, entity, payload, e.Timestamp)
		if err != nil {
			return fmt.Errorf("insert change %s: %w", e.ID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert change %s: %w", e.ID, err)
		}
		if n == 0 {
			s.logger.Debug(ctx, "change already applied", "id", e.ID, "entity", entity)
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_totals (entity, changes, last_change_at)
			VALUES ($1, 1, $2)
			ON CONFLICT (entity) DO UPDATE
			SET changes = entity_totals.changes + 1,
			    last_change_at = GREATEST(entity_totals.last_change_at, EXCLUDED.last_change_at)`,
			entity, e.Timestamp)
		if err != nil {
			return fmt.Errorf("update totals for %s: %w", entity, err)
		}
		return nil
	})
}

// Recent returns up to limit most recent changes for entity, newest first.
func (s *Sink) Recent(ctx context.Context, entity string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT change_id, entity, payload, occurred_at
		FROM business_changes
		WHERE entity = $1
		ORDER BY occurred_at DESC
		LIMIT $2`, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent %s: %w", entity, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			payload []byte
		)
		if err := rows.Scan(&r.ChangeID, &r.Entity, &payload, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		r.Payload = payload
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return out, nil
}

// Handlers returns the offline replay table for every known entity.
func (s *Sink) Handlers() offline.HandlerTable {
	t := make(offline.HandlerTable, len(Entities))
	for _, entity := range Entities {
		t[entity] = func(ctx context.Context, e offline.QueueEntry) error {
			return s.Apply(ctx, entity, e)
		}
	}
	return t
}

// RefreshRecent adapts Recent to an offline refresh callback. An empty
// result yields nil so the cached value is kept.
func (s *Sink) RefreshRecent(entity string, limit int) offline.RefreshFunc {
	return func(ctx context.Context) (any, error) {
		recs, err := s.Recent(ctx, entity, limit)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, nil
		}
		return recs, nil
	}
}
