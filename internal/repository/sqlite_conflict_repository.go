package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

const conflictSchema = `
CREATE TABLE IF NOT EXISTS conflicts (
	key         TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	editor_id   TEXT NOT NULL,
	record      TEXT NOT NULL,
	expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conflicts_expires_at ON conflicts(expires_at);
`

type sqliteConflictRepository struct {
	db *sql.DB
}

// OpenSQLiteConflictRepository opens (or creates) the conflict database at
// path. Use ":memory:" for a throwaway store.
func OpenSQLiteConflictRepository(path string) (ConflictRepository, func() error, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(conflictSchema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create conflicts table: %w", err)
	}

	return &sqliteConflictRepository{db: db}, db.Close, nil
}

func (r *sqliteConflictRepository) Put(ctx context.Context, key string, record *domain.ConflictRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode conflict: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conflicts (key, document_id, editor_id, record, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			document_id = excluded.document_id,
			editor_id   = excluded.editor_id,
			record      = excluded.record,
			expires_at  = excluded.expires_at`,
		key, record.DocumentID, record.EditorID, string(data), record.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store conflict: %w", err)
	}

	return nil
}

func (r *sqliteConflictRepository) Get(ctx context.Context, key string) (*domain.ConflictRecord, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT record FROM conflicts WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}

	var record domain.ConflictRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to decode conflict: %w", err)
	}

	return &record, nil
}

func (r *sqliteConflictRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
	}
	return nil
}

func (r *sqliteConflictRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge conflicts: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged conflicts: %w", err)
	}

	return int(n), nil
}
