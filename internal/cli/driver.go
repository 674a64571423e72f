package cli

import (
	"context"
	"fmt"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

// Driver runs session operations either in process or against a server.
// Simple and Indexed name operations by their REST path below the session.
type Driver interface {
	Open(ctx context.Context, planID, name string) (*session.View, bool, error)
	View(ctx context.Context) (*session.View, error)
	LogSet(ctx context.Context, in session.SetInput) (*session.View, error)
	Simple(ctx context.Context, op string) (*session.View, error)
	Indexed(ctx context.Context, op string, index int) (*session.View, error)
	ExtendRest(ctx context.Context, seconds float64) (*session.View, error)
	Finish(ctx context.Context, mode session.FinishMode) (*session.Result, *session.View, error)
}

var simpleOps = map[string]func(*session.Session, context.Context) error{
	"skip-set":        (*session.Session).SkipSet,
	"pause":           (*session.Session).Pause,
	"resume":          (*session.Session).Resume,
	"flush":           (*session.Session).Flush,
	"deferred":        (*session.Session).ResumeDeferred,
	"rest/skip":       (*session.Session).SkipRest,
	"rest/pause":      (*session.Session).PauseRest,
	"rest/resume":     (*session.Session).ResumeRest,
	"timed-set/start": (*session.Session).StartTimedSet,
	"timed-set/pause": (*session.Session).PauseTimedSet,
	"timed-set/reset": (*session.Session).ResetTimedSet,
	"emom/start":      (*session.Session).StartEmom,
	"emom/pause":      (*session.Session).PauseEmom,
	"emom/resume":     (*session.Session).ResumeEmom,
	"emom/complete":   (*session.Session).CompleteRound,
}

var indexOps = map[string]func(*session.Session, context.Context, int) error{
	"skip":  (*session.Session).SkipExercise,
	"defer": (*session.Session).DeferExercise,
	"jump":  (*session.Session).JumpTo,
}

// localDriver drives a Manager in this process.
type localDriver struct {
	sessions *session.Manager
}

func (d *localDriver) Open(ctx context.Context, planID, name string) (*session.View, bool, error) {
	origin := models.AdHoc()
	if planID != "" {
		origin = models.FromPlan(planID)
	}
	sess, resumed, err := d.sessions.Open(ctx, session.StartOptions{Origin: origin, Name: name})
	if err != nil {
		return nil, false, err
	}
	return sess.View(), resumed, nil
}

func (d *localDriver) View(ctx context.Context) (*session.View, error) {
	sess, err := d.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	return sess.View(), nil
}

func (d *localDriver) run(ctx context.Context, fn func(*session.Session) error) (*session.View, error) {
	sess, err := d.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	return sess.View(), nil
}

func (d *localDriver) LogSet(ctx context.Context, in session.SetInput) (*session.View, error) {
	return d.run(ctx, func(s *session.Session) error { return s.LogSet(ctx, in) })
}

func (d *localDriver) Simple(ctx context.Context, op string) (*session.View, error) {
	fn, ok := simpleOps[op]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	return d.run(ctx, func(s *session.Session) error { return fn(s, ctx) })
}

func (d *localDriver) Indexed(ctx context.Context, op string, index int) (*session.View, error) {
	fn, ok := indexOps[op]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	return d.run(ctx, func(s *session.Session) error { return fn(s, ctx, index) })
}

func (d *localDriver) ExtendRest(ctx context.Context, seconds float64) (*session.View, error) {
	return d.run(ctx, func(s *session.Session) error { return s.ExtendRest(ctx, seconds2duration(seconds)) })
}

func (d *localDriver) Finish(ctx context.Context, mode session.FinishMode) (*session.Result, *session.View, error) {
	sess, err := d.sessions.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	res, err := sess.Finish(ctx, mode)
	if err != nil {
		return nil, nil, err
	}
	return res, sess.View(), nil
}
