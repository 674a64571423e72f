package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/claude/setplayer/internal/localstore"
	"github.com/claude/setplayer/internal/session"
)

const pushPlan = `name: Push day
exercises:
  - id: bench
    exercise_id: bench-press
    exercise_name: Bench press
    sets:
      - id: b1
        type: standard
        target:
          reps: {min: 6, max: 8}
          weight: {exact: 80}
      - id: b2
        type: standard
        target:
          reps: {min: 6, max: 8}
          weight: {exact: 80}
`

type env struct {
	storeDir string
	plansDir string
}

func newEnv(t *testing.T) env {
	t.Helper()
	e := env{storeDir: t.TempDir(), plansDir: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(e.plansDir, "push.yaml"), []byte(pushPlan), 0o644))
	return e
}

// run executes one CLI invocation against the env's store and plans.
func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--store-dir", e.storeDir, "--plans-dir", e.plansDir, "--no-input"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// TestStartLogStatus plays a set across separate invocations.
func TestStartLogStatus(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "start", "push")
	require.NoError(t, err)
	assert.Contains(t, out, "Push day")
	assert.Contains(t, out, "Bench press")
	assert.Contains(t, out, "set 1/2")

	out, err = e.run(t, "start", "push")
	require.NoError(t, err)
	assert.Contains(t, out, "Resuming workout.")

	out, err = e.run(t, "log", "-r", "8", "-w", "80")
	require.NoError(t, err)
	assert.Contains(t, out, "set 2/2")

	out, err = e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1 sets logged, 1 to go")
}

// TestStatusWithoutSession reports an empty store without failing.
func TestStatusWithoutSession(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no active session")
}

// TestFinishChoice checks that an unanswered prompt surfaces as an error and
// that --choice answers it.
func TestFinishChoice(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "start", "push")
	require.NoError(t, err)
	_, err = e.run(t, "log", "-r", "8", "-w", "80")
	require.NoError(t, err)

	_, err = e.run(t, "finish", "--early")
	p, ok := session.IsDecisionRequired(err)
	require.True(t, ok, "err = %v, want decision required", err)
	assert.Equal(t, session.PromptReconcile, p.Kind)

	out, err := e.run(t, "finish", "--early", "--choice", "reconcile=log_as_is")
	require.NoError(t, err)
	assert.Contains(t, out, "Workout saved: 1 sets")

	store, err := localstore.Open(e.storeDir)
	require.NoError(t, err)
	defer store.Close()
	logs, err := store.Logs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Push day", logs[0].PlanName)
}

// TestArgumentErrors covers flag and argument validation.
func TestArgumentErrors(t *testing.T) {
	e := newEnv(t)
	cases := [][]string{
		{"start"},
		{"start", "push", "--ad-hoc"},
		{"jump", "-1"},
		{"rest", "extend", "soon"},
		{"finish", "--early", "--quit"},
		{"status", "--choice", "nonsense"},
	}
	for _, args := range cases {
		if _, err := e.run(t, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

// TestPlansList lists plan ids from the plans directory.
func TestPlansList(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "plans")
	require.NoError(t, err)
	assert.Equal(t, "push\n", out)
}

// TestParseChoices checks the kind=role[,field=value] format.
func TestParseChoices(t *testing.T) {
	d, err := parseChoices([]string{"finish=finish", "reconcile=fork_plan,name=Push B"})
	require.NoError(t, err)
	assert.Equal(t, session.RoleFinish, d[session.PromptFinish].Role)
	assert.Equal(t, "Push B", d[session.PromptReconcile].Data["name"])

	for _, bad := range []string{"finish", "=finish", "finish=", "reconcile=fork_plan,name"} {
		if _, err := parseChoices([]string{bad}); err == nil {
			t.Errorf("parseChoices(%q): expected an error", bad)
		}
	}
}

// TestParseChoicesProperty checks that any well-formed choice round-trips.
func TestParseChoicesProperty(t *testing.T) {
	word := rapid.StringMatching(`[a-z_]{1,12}`)
	rapid.Check(t, func(t *rapid.T) {
		kind := word.Draw(t, "kind")
		role := word.Draw(t, "role")
		field := word.Draw(t, "field")
		value := rapid.StringMatching(`[A-Za-z0-9 ]{0,12}`).Draw(t, "value")

		d, err := parseChoices([]string{kind + "=" + role + "," + field + "=" + value})
		if err != nil {
			t.Fatalf("parseChoices: %v", err)
		}
		r := d[session.PromptKind(kind)]
		if r.Role != role || r.Data[field] != value {
			t.Fatalf("got %+v, want role %q %s=%q", r, role, field, value)
		}
	})
}

// TestRenderPrompt lists every choice as a --choice flag.
func TestRenderPrompt(t *testing.T) {
	var buf bytes.Buffer
	renderPrompt(&buf, session.Prompt{
		Kind:  session.PromptFinish,
		Title: "All sets done",
		Choices: []session.Choice{
			{Role: session.RoleFinish, Label: "Finish"},
			{Role: session.RoleContinue, Label: "Keep going"},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "All sets done")
	assert.Contains(t, out, "--choice finish=finish")
	assert.Contains(t, out, "--choice finish=continue")
}

// TestRenderResultQuit prints nothing about saved sets for a quit.
func TestRenderResultQuit(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, &session.Result{Kind: session.ResultQuit})
	assert.Contains(t, buf.String(), "abandoned")
	assert.False(t, strings.Contains(buf.String(), "saved"))
}

// TestImportThenStart imports a plan into the store and plays it without
// --plans-dir.
func TestImportThenStart(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "import", e.plansDir)
	require.NoError(t, err)
	assert.Equal(t, "1 created, 0 updated, 0 unchanged, 0 rejected\n", out)

	root := NewRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"--store-dir", e.storeDir, "--no-input", "start", "push"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "Push day")
}
