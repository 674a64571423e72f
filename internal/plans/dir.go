// Package plans reads and writes plans as YAML files, one plan per file,
// named <id>.yaml.
package plans

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

const ext = ".yaml"

// Dir is a directory of plan files.
type Dir struct {
	Path string
}

// LoadFile parses one plan file. A plan without an id takes the file's base
// name.
func LoadFile(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var p models.Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	if p.ID == "" {
		p.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &p, nil
}

// GetPlan loads <id>.yaml. A missing file wraps session.ErrPlanNotFound.
func (d Dir) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	path, err := d.file(id)
	if err != nil {
		return nil, err
	}
	p, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("plan %s: %w", id, session.ErrPlanNotFound)
	}
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

// CreatePlan writes a new plan file. An existing file is not overwritten.
func (d Dir) CreatePlan(_ context.Context, plan *models.Plan) error {
	path, err := d.file(plan.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("plan %s already exists", plan.ID)
	}
	stored := *plan
	stored.Exercises = models.Template(plan.Exercises)
	return d.write(path, &stored)
}

// ReplaceExercises rewrites a plan file with a new exercise list.
func (d Dir) ReplaceExercises(ctx context.Context, planID string, exercises []models.SessionExercise) error {
	p, err := d.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	p.Exercises = models.Template(exercises)
	path, _ := d.file(planID)
	return d.write(path, p)
}

// List returns the ids of every plan in the directory, sorted.
func (d Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(ids)
	return ids, nil
}

func (d Dir) file(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid plan id %q", id)
	}
	return filepath.Join(d.Path, id+ext), nil
}

// write replaces path atomically via a temp file in the same directory.
func (d Dir) write(path string, p *models.Plan) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding plan %s: %w", p.ID, err)
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("creating plan dir: %w", err)
	}
	tmp, err := os.CreateTemp(d.Path, ".plan-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing plan %s: %w", p.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing plan %s: %w", p.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing plan %s: %w", p.ID, err)
	}
	return nil
}
