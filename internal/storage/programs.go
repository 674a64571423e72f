package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/setplayer/internal/models"
)

// ErrProgramNotFound is returned for an unknown program id.
var ErrProgramNotFound = errors.New("program not found")

// GetProgram loads a program by id.
func (db *DB) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	var p models.Program
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, total_iterations, completed FROM programs WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.TotalIterations, &p.Completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("program %s: %w", id, ErrProgramNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying program %s: %w", id, err)
	}
	return &p, nil
}

// CheckAndHandleCompletion marks the program completed once logs exist for
// as many distinct iterations as it has. It reports true only for the call
// that completes the program. Programs without an iteration count never
// complete.
func (db *DB) CheckAndHandleCompletion(ctx context.Context, programID string, _ *models.WorkoutLog) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE programs p SET completed = TRUE, completed_at = NOW()
		 WHERE p.id = $1 AND NOT p.completed AND p.total_iterations > 0
		   AND (SELECT COUNT(DISTINCT COALESCE(w.iteration_id, w.id))
		        FROM workout_logs w WHERE w.program_id = p.id) >= p.total_iterations`,
		programID)
	if err != nil {
		return false, fmt.Errorf("checking completion of program %s: %w", programID, err)
	}
	return tag.RowsAffected() > 0, nil
}
