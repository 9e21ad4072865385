// Package snapshot persists fetched content files keyed by revision and path.
//
// Files at a given commit never change, so an entry is written once and read
// back on later server cycles pinned to the same revision.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    revision    TEXT NOT NULL,
    path        TEXT NOT NULL,
    data        BLOB NOT NULL,
    fetched_at  DATETIME NOT NULL,
    PRIMARY KEY (revision, path)
);
`

// Store is a key-value store mapping (revision, path) to file bytes.
type Store interface {
	Get(ctx context.Context, revision, path string) ([]byte, bool, error)
	Put(ctx context.Context, revision, path string, data []byte) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// SetupSchema creates the snapshot table if it does not exist.
func SetupSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// SQLiteStore is a Store on top of a database/sql SQLite handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore prepares the schema and returns a store using db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if err := SetupSchema(db); err != nil {
		return nil, fmt.Errorf("failed to setup snapshot schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, revision, path string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM snapshots WHERE revision = ? AND path = ?", revision, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot %s@%s: %w", path, revision, err)
	}
	return data, true, nil
}

// Put stores data unless an entry already exists; the first write wins.
func (s *SQLiteStore) Put(ctx context.Context, revision, path string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO snapshots (revision, path, data, fetched_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(revision, path) DO NOTHING
    `, revision, path, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write snapshot %s@%s: %w", path, revision, err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots")
	return err
}

// PruneExcept deletes every entry that does not belong to revision and
// reports how many rows were removed.
func (s *SQLiteStore) PruneExcept(ctx context.Context, revision string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE revision != ?", revision)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
