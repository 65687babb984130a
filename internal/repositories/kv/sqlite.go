package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizkeeper/internal/dbx"
)

// SQLiteRepository keeps pairs in the kv_store table.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kv[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set kv[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete kv[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_store`); err != nil {
		return fmt.Errorf("failed to clear kv store: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv store: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan kv row: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kv rows: %w", err)
	}
	return result, nil
}
