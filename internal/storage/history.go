package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/setplayer/internal/models"
)

const setColumns = 21

// AppendLog stores a finished workout and its sets in one transaction.
// Re-appending a log with the same id is a no-op.
func (db *DB) AppendLog(ctx context.Context, log *models.WorkoutLog) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO workout_logs (id, plan_id, plan_name, program_id, iteration_id,
		 start_time, end_time, duration_seconds)
		 VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		log.ID, log.PlanID, log.PlanName, log.ProgramID, log.IterationID,
		log.StartTime, log.EndTime, log.Duration.Seconds())
	if err != nil {
		return fmt.Errorf("inserting workout log %s: %w", log.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	if err := insertSets(ctx, tx, log); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing workout log %s: %w", log.ID, err)
	}
	return nil
}

func insertSets(ctx context.Context, tx pgx.Tx, log *models.WorkoutLog) error {
	if log.SetCount() == 0 {
		return nil
	}

	query := `INSERT INTO logged_sets (id, log_id, exercise_number, set_number,
		exercise_instance_id, exercise_id, exercise_name, superset_id, superset_order,
		superset_type, planned_set_id, set_type, reps, weight_kg, duration_seconds,
		distance_m, rest_seconds, rpe, notes, performed_at, target) VALUES `
	args := make([]any, 0, log.SetCount()*setColumns)
	valueStrings := make([]string, 0, log.SetCount())

	for i, ex := range log.Exercises {
		for j, set := range ex.Sets {
			target, err := json.Marshal(set.Target)
			if err != nil {
				return fmt.Errorf("encoding target of set %s: %w", set.ID, err)
			}
			base := len(valueStrings) * setColumns
			ph := make([]string, setColumns)
			for k := range ph {
				ph[k] = fmt.Sprintf("$%d", base+k+1)
			}
			valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
			args = append(args, set.ID, log.ID, i, j,
				ex.ID, ex.ExerciseID, ex.ExerciseName, nullable(ex.SupersetID), ex.SupersetOrder,
				nullable(string(ex.SupersetType)), set.PlannedSetID, string(set.Type),
				set.Reps, set.Weight, set.Duration, set.Distance, set.Rest, set.RPE,
				set.Notes, set.Timestamp, json.RawMessage(target))
		}
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting logged sets: %w", err)
	}
	return nil
}

// LastPerformance returns the sets of the most recent workout that included
// the catalog exercise, or nil when it was never logged.
func (db *DB) LastPerformance(ctx context.Context, exerciseID string) (*models.LoggedExercise, error) {
	rows, err := db.Pool.Query(ctx,
		`WITH last AS (
			SELECT log_id, MIN(exercise_number) AS exercise_number
			FROM logged_sets
			WHERE exercise_id = $1
			  AND log_id = (
				SELECT ls.log_id FROM logged_sets ls
				JOIN workout_logs w ON w.id = ls.log_id
				WHERE ls.exercise_id = $1
				ORDER BY w.end_time DESC
				LIMIT 1)
			GROUP BY log_id
		)
		SELECT s.id, s.exercise_instance_id, s.exercise_id, s.exercise_name,
		 COALESCE(s.superset_id, ''), s.superset_order, COALESCE(s.superset_type, ''),
		 s.planned_set_id, s.set_type, s.reps, s.weight_kg, s.duration_seconds,
		 s.distance_m, s.rest_seconds, s.rpe, s.notes, s.performed_at, s.target
		 FROM logged_sets s
		 JOIN last ON last.log_id = s.log_id AND last.exercise_number = s.exercise_number
		 ORDER BY s.set_number`,
		exerciseID)
	if err != nil {
		return nil, fmt.Errorf("querying last performance of %s: %w", exerciseID, err)
	}
	defer rows.Close()

	var le *models.LoggedExercise
	for rows.Next() {
		var (
			ex     models.LoggedExercise
			set    models.LoggedSet
			kind   string
			setTyp string
			target []byte
		)
		if err := rows.Scan(&set.ID, &ex.ID, &ex.ExerciseID, &ex.ExerciseName,
			&ex.SupersetID, &ex.SupersetOrder, &kind,
			&set.PlannedSetID, &setTyp, &set.Reps, &set.Weight, &set.Duration,
			&set.Distance, &set.Rest, &set.RPE, &set.Notes, &set.Timestamp, &target); err != nil {
			return nil, fmt.Errorf("scanning logged set: %w", err)
		}
		if err := json.Unmarshal(target, &set.Target); err != nil {
			return nil, fmt.Errorf("decoding target of set %s: %w", set.ID, err)
		}
		set.Type = models.SetType(setTyp)
		set.ExerciseInstanceID = ex.ID
		if le == nil {
			ex.SupersetType = models.BlockType(kind)
			le = &ex
		}
		le.Sets = append(le.Sets, set)
	}
	return le, rows.Err()
}

// PersonalBests aggregates the best working-set values logged for a catalog
// exercise. Warm-up sets are ignored. Returns nil when nothing was logged.
func (db *DB) PersonalBests(ctx context.Context, exerciseID string) (*models.PersonalBests, error) {
	var (
		n  int
		pb = models.PersonalBests{ExerciseID: exerciseID}
	)
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(weight_kg), MAX(reps), MAX(duration_seconds), MAX(distance_m),
		 MAX(weight_kg * (1 + reps / 30.0))
		 FROM logged_sets
		 WHERE exercise_id = $1 AND set_type <> 'warmup'`,
		exerciseID,
	).Scan(&n, &pb.MaxWeight, &pb.MaxReps, &pb.MaxDuration, &pb.MaxDistance, &pb.BestE1RM)
	if err != nil {
		return nil, fmt.Errorf("querying personal bests of %s: %w", exerciseID, err)
	}
	if n == 0 {
		return nil, nil
	}
	return &pb, nil
}

// LogSummary is one row of the workout history list.
type LogSummary struct {
	ID        string        `json:"id"`
	PlanID    string        `json:"plan_id,omitempty"`
	PlanName  string        `json:"plan_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration_ns"`
	Sets      int           `json:"sets"`
}

// RecentLogs returns the most recent finished workouts.
func (db *DB) RecentLogs(ctx context.Context, limit int) ([]LogSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT w.id, COALESCE(w.plan_id, ''), w.plan_name, w.start_time, w.duration_seconds,
		 (SELECT COUNT(*) FROM logged_sets s WHERE s.log_id = w.id)
		 FROM workout_logs w
		 ORDER BY w.start_time DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying workout logs: %w", err)
	}
	defer rows.Close()

	var result []LogSummary
	for rows.Next() {
		var (
			l       LogSummary
			seconds float64
		)
		if err := rows.Scan(&l.ID, &l.PlanID, &l.PlanName, &l.StartTime, &seconds, &l.Sets); err != nil {
			return nil, fmt.Errorf("scanning workout log: %w", err)
		}
		l.Duration = time.Duration(seconds * float64(time.Second))
		result = append(result, l)
	}
	return result, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
