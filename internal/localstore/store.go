// Package localstore keeps plans, workout history and the session snapshot
// in a SQLite file, for running without PostgreSQL.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS plans (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	program_id TEXT NOT NULL DEFAULT '',
	exercises  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS workout_logs (
	id       TEXT PRIMARY KEY,
	plan_id  TEXT NOT NULL DEFAULT '',
	ended_at INTEGER NOT NULL,
	body     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS logged_exercises (
	log_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	exercise_id TEXT NOT NULL,
	ended_at    INTEGER NOT NULL,
	body        TEXT NOT NULL,
	PRIMARY KEY (log_id, position)
);
CREATE INDEX IF NOT EXISTS idx_logged_exercises_exercise ON logged_exercises (exercise_id, ended_at);
CREATE TABLE IF NOT EXISTS logged_sets (
	id          TEXT PRIMARY KEY,
	log_id      TEXT NOT NULL,
	exercise_id TEXT NOT NULL,
	set_type    TEXT NOT NULL,
	reps        REAL,
	weight_kg   REAL,
	duration_s  REAL,
	distance_m  REAL
);
CREATE INDEX IF NOT EXISTS idx_logged_sets_exercise ON logged_sets (exercise_id);
`

// Store is a SQLite-backed plan, history and snapshot store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dir/setplayer.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "setplayer.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	// One connection serialises writers; SQLite allows only one at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the snapshot blob stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM snapshots WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", key, session.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", key, err)
	}
	return blob, nil
}

// Set stores blob under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (key, blob, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		key, blob)
	if err != nil {
		return fmt.Errorf("storing snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", key, err)
	}
	return nil
}

// GetPlan loads a plan. Unknown ids wrap session.ErrPlanNotFound.
func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var (
		p   models.Plan
		raw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, program_id, exercises FROM plans WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.ProgramID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, session.ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), &p.Exercises); err != nil {
		return nil, fmt.Errorf("decoding exercises of plan %s: %w", id, err)
	}
	return &p, nil
}

// CreatePlan stores a new plan, replacing one with the same id.
func (s *Store) CreatePlan(ctx context.Context, plan *models.Plan) error {
	raw, err := json.Marshal(models.Template(plan.Exercises))
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO plans (id, name, program_id, exercises) VALUES (?, ?, ?, ?)`,
		plan.ID, plan.Name, plan.ProgramID, string(raw))
	if err != nil {
		return fmt.Errorf("storing plan %s: %w", plan.ID, err)
	}
	return nil
}

// ReplaceExercises overwrites a plan's exercise list.
func (s *Store) ReplaceExercises(ctx context.Context, planID string, exercises []models.SessionExercise) error {
	raw, err := json.Marshal(models.Template(exercises))
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE plans SET exercises = ? WHERE id = ?`, string(raw), planID)
	if err != nil {
		return fmt.Errorf("updating plan %s: %w", planID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("plan %s: %w", planID, session.ErrPlanNotFound)
	}
	return nil
}
