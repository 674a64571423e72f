package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/setplayer/internal/session"
)

// Get returns the snapshot blob stored under key.
func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT blob FROM session_snapshots WHERE key = $1`, key,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", key, session.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot %s: %w", key, err)
	}
	return blob, nil
}

// Set upserts the snapshot blob stored under key.
func (db *DB) Set(ctx context.Context, key string, blob []byte) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO session_snapshots (key, blob) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()`,
		key, blob)
	if err != nil {
		return fmt.Errorf("storing snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot stored under key. Deleting a missing key is
// not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM session_snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", key, err)
	}
	return nil
}
