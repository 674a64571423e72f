package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/claude/setplayer/internal/models"
)

// AppendLog stores a finished workout. Re-appending the same log id is a
// no-op.
func (s *Store) AppendLog(ctx context.Context, log *models.WorkoutLog) error {
	body, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encoding workout log: %w", err)
	}
	ended := log.EndTime.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO workout_logs (id, plan_id, ended_at, body) VALUES (?, ?, ?, ?)`,
		log.ID, log.PlanID, ended, string(body))
	if err != nil {
		return fmt.Errorf("inserting workout log %s: %w", log.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	for i, ex := range log.Exercises {
		exBody, err := json.Marshal(ex)
		if err != nil {
			return fmt.Errorf("encoding logged exercise %s: %w", ex.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO logged_exercises (log_id, position, exercise_id, ended_at, body) VALUES (?, ?, ?, ?, ?)`,
			log.ID, i, ex.ExerciseID, ended, string(exBody)); err != nil {
			return fmt.Errorf("inserting logged exercise %s: %w", ex.ID, err)
		}
		for _, set := range ex.Sets {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO logged_sets (id, log_id, exercise_id, set_type, reps, weight_kg, duration_s, distance_m)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				set.ID, log.ID, ex.ExerciseID, string(set.Type),
				set.Reps, set.Weight, set.Duration, set.Distance); err != nil {
				return fmt.Errorf("inserting logged set %s: %w", set.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing workout log %s: %w", log.ID, err)
	}
	return nil
}

// LastPerformance returns the exercise as logged in the most recent workout
// that included it, or nil.
func (s *Store) LastPerformance(ctx context.Context, exerciseID string) (*models.LoggedExercise, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM logged_exercises WHERE exercise_id = ?
		 ORDER BY ended_at DESC, position ASC LIMIT 1`,
		exerciseID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last performance of %s: %w", exerciseID, err)
	}
	var le models.LoggedExercise
	if err := json.Unmarshal([]byte(body), &le); err != nil {
		return nil, fmt.Errorf("decoding last performance of %s: %w", exerciseID, err)
	}
	return &le, nil
}

// PersonalBests aggregates the best working-set values for an exercise, or
// returns nil when it was never logged.
func (s *Store) PersonalBests(ctx context.Context, exerciseID string) (*models.PersonalBests, error) {
	var (
		n                                     int
		weight, reps, duration, distance, e1rm sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(weight_kg), MAX(reps), MAX(duration_s), MAX(distance_m),
		 MAX(weight_kg * (1 + reps / 30.0))
		 FROM logged_sets WHERE exercise_id = ? AND set_type <> 'warmup'`,
		exerciseID).Scan(&n, &weight, &reps, &duration, &distance, &e1rm)
	if err != nil {
		return nil, fmt.Errorf("reading personal bests of %s: %w", exerciseID, err)
	}
	if n == 0 {
		return nil, nil
	}
	return &models.PersonalBests{
		ExerciseID:  exerciseID,
		MaxWeight:   nullFloat(weight),
		MaxReps:     nullFloat(reps),
		MaxDuration: nullFloat(duration),
		MaxDistance: nullFloat(distance),
		BestE1RM:    nullFloat(e1rm),
	}, nil
}

// Logs returns the most recent workout logs, newest first.
func (s *Store) Logs(ctx context.Context, limit int) ([]*models.WorkoutLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM workout_logs ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying workout logs: %w", err)
	}
	defer rows.Close()

	var result []*models.WorkoutLog
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning workout log: %w", err)
		}
		var l models.WorkoutLog
		if err := json.Unmarshal([]byte(body), &l); err != nil {
			return nil, fmt.Errorf("decoding workout log: %w", err)
		}
		result = append(result, &l)
	}
	return result, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
