package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"matchvault/internal/archive"

	_ "modernc.org/sqlite"
)

// SQLite is a catalog stored in a local sqlite file
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the catalog at path
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// archives run concurrently; one connection keeps writers from tripping over each other
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS archived_matches (
			match_id TEXT NOT NULL,
			dir_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			player TEXT NOT NULL DEFAULT '',
			archived_at TEXT NOT NULL,
			PRIMARY KEY (match_id, parent_id, player)
		);

		CREATE INDEX IF NOT EXISTS idx_archived_matches_parent ON archived_matches (parent_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts e, replacing an earlier record of the same match for the
// same parent and player
func (s *SQLite) Record(ctx context.Context, e archive.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_matches (match_id, dir_name, kind, parent_id, player, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id, parent_id, player) DO UPDATE SET
			dir_name = excluded.dir_name,
			kind = excluded.kind,
			archived_at = excluded.archived_at
	`, e.MatchID, e.Dir, string(e.Kind), e.Parent, e.Player, e.ArchivedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Lookup returns the directory name of the earliest record of matchID
func (s *SQLite) Lookup(ctx context.Context, matchID string) (string, bool, error) {
	var dir string
	err := s.db.QueryRowContext(ctx, `
		SELECT dir_name FROM archived_matches WHERE match_id = ? ORDER BY archived_at LIMIT 1
	`, matchID).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return dir, true, nil
}

// Count returns the number of records
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_matches`).Scan(&count)
	return count, err
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
