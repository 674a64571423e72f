// Package importer loads a directory of YAML plan files into a plan store.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/plans"
	"github.com/claude/setplayer/internal/session"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	PlansCreated int
	PlansUpdated int

	Errored []string
}

// Importer copies plan files into a PlanProvider. Plans already present are
// updated in place when their exercises differ; the stored name is kept.
type Importer struct {
	store  session.PlanProvider
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

// New creates a new Importer.
func New(store session.PlanProvider, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{store: store, log: log, dryRun: dryRun}
}

// Import processes every <id>.yaml file in dir. A file that cannot be read or
// fails validation is counted and logged, and the import carries on; a store
// failure aborts it.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	ids, err := plans.Dir{Path: dir}.List()
	if err != nil {
		return &imp.stats, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}
		path := filepath.Join(dir, id+".yaml")
		p, err := plans.LoadFile(path)
		if err == nil {
			p.ID = id
			err = p.Validate()
		}
		if err != nil {
			imp.log.Warn("plan file rejected", "file", path, "error", err)
			imp.stats.FilesErrored++
			imp.stats.Errored = append(imp.stats.Errored, id)
			continue
		}
		if err := imp.importPlan(ctx, p); err != nil {
			return &imp.stats, fmt.Errorf("importing %s: %w", id, err)
		}
	}
	return &imp.stats, nil
}

func (imp *Importer) importPlan(ctx context.Context, p *models.Plan) error {
	existing, err := imp.store.GetPlan(ctx, p.ID)
	switch {
	case errors.Is(err, session.ErrPlanNotFound):
		imp.stats.FilesProcessed++
		imp.stats.PlansCreated++
		if imp.dryRun {
			return nil
		}
		imp.log.Info("creating plan", "id", p.ID, "exercises", len(p.Exercises))
		return imp.store.CreatePlan(ctx, p)
	case err != nil:
		return err
	}

	same, err := sameExercises(existing.Exercises, p.Exercises)
	if err != nil {
		return err
	}
	if same {
		imp.stats.FilesSkipped++
		return nil
	}
	imp.stats.FilesProcessed++
	imp.stats.PlansUpdated++
	if imp.dryRun {
		return nil
	}
	imp.log.Info("updating plan", "id", p.ID, "exercises", len(p.Exercises))
	return imp.store.ReplaceExercises(ctx, p.ID, p.Exercises)
}

// sameExercises compares the stored form of two exercise lists.
func sameExercises(a, b []models.SessionExercise) (bool, error) {
	ja, err := json.Marshal(models.Template(a))
	if err != nil {
		return false, fmt.Errorf("encoding exercises: %w", err)
	}
	jb, err := json.Marshal(models.Template(b))
	if err != nil {
		return false, fmt.Errorf("encoding exercises: %w", err)
	}
	return bytes.Equal(ja, jb), nil
}
