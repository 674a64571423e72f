package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

// GetPlan loads a plan with its exercises. Unknown ids wrap
// session.ErrPlanNotFound.
func (db *DB) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var (
		p         models.Plan
		programID *string
		raw       []byte
	)
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, program_id, exercises FROM plans WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &programID, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, session.ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying plan %s: %w", id, err)
	}
	if programID != nil {
		p.ProgramID = *programID
	}
	if err := json.Unmarshal(raw, &p.Exercises); err != nil {
		return nil, fmt.Errorf("decoding exercises of plan %s: %w", id, err)
	}
	return &p, nil
}

// CreatePlan inserts a new plan.
func (db *DB) CreatePlan(ctx context.Context, plan *models.Plan) error {
	raw, err := json.Marshal(models.Template(plan.Exercises))
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO plans (id, name, program_id, exercises)
		 VALUES ($1, $2, NULLIF($3, ''), $4)`,
		plan.ID, plan.Name, plan.ProgramID, json.RawMessage(raw))
	if err != nil {
		return fmt.Errorf("inserting plan %s: %w", plan.ID, err)
	}
	return nil
}

// ReplaceExercises overwrites a plan's exercise list.
func (db *DB) ReplaceExercises(ctx context.Context, planID string, exercises []models.SessionExercise) error {
	raw, err := json.Marshal(models.Template(exercises))
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	tag, err := db.Pool.Exec(ctx,
		`UPDATE plans SET exercises = $2, updated_at = NOW() WHERE id = $1`,
		planID, json.RawMessage(raw))
	if err != nil {
		return fmt.Errorf("updating plan %s: %w", planID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plan %s: %w", planID, session.ErrPlanNotFound)
	}
	return nil
}

// PlanSummary is one row of the plan list.
type PlanSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProgramID string `json:"program_id,omitempty"`
	Exercises int    `json:"exercises"`
}

// ListPlans returns every stored plan, by name.
func (db *DB) ListPlans(ctx context.Context) ([]PlanSummary, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, COALESCE(program_id, ''), jsonb_array_length(exercises)
		 FROM plans ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	defer rows.Close()

	var result []PlanSummary
	for rows.Next() {
		var p PlanSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.ProgramID, &p.Exercises); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
