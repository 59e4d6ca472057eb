package catalog

import (
	"context"
	"errors"
	"fmt"

	"matchvault/internal/archive"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a catalog shared through a postgres database
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the schema if needed
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) init(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS archived_matches (
			match_id TEXT NOT NULL,
			dir_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			player TEXT NOT NULL DEFAULT '',
			archived_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (match_id, parent_id, player)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts e, replacing an earlier record of the same match for the
// same parent and player
func (p *Postgres) Record(ctx context.Context, e archive.Entry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO archived_matches (match_id, dir_name, kind, parent_id, player, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id, parent_id, player) DO UPDATE SET
			dir_name = EXCLUDED.dir_name,
			kind = EXCLUDED.kind,
			archived_at = EXCLUDED.archived_at
	`, e.MatchID, e.Dir, string(e.Kind), e.Parent, e.Player, e.ArchivedAt)
	return err
}

// Lookup returns the directory name of the earliest record of matchID
func (p *Postgres) Lookup(ctx context.Context, matchID string) (string, bool, error) {
	var dir string
	err := p.pool.QueryRow(ctx, `
		SELECT dir_name FROM archived_matches WHERE match_id = $1 ORDER BY archived_at LIMIT 1
	`, matchID).Scan(&dir)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return dir, true, nil
}

// Count returns the number of records
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM archived_matches`).Scan(&count)
	return count, err
}

// Close closes the pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
