// Package cli is the setplayer terminal client. It plays a workout in process
// against a local SQLite store, or drives a remote server with --server.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/claude/setplayer/internal/client"
	"github.com/claude/setplayer/internal/config"
	"github.com/claude/setplayer/internal/localstore"
	"github.com/claude/setplayer/internal/plans"
	"github.com/claude/setplayer/internal/session"
)

// app holds the flags and the driver shared by every subcommand.
type app struct {
	configPath string
	storeDir   string
	plansDir   string
	serverURL  string
	apiKey     string
	choices    []string
	noInput    bool

	drv      Driver
	store    session.PlanProvider
	prompter session.Prompter
	closers  []func(context.Context) error
}

// NewRoot builds the command tree.
func NewRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "setplayer",
		Short:         "Play a strength workout set by set",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML config file (store, plans and session settings)")
	f.StringVar(&a.storeDir, "store-dir", "", "directory of the local session database")
	f.StringVar(&a.plansDir, "plans-dir", "", "directory of <id>.yaml plan files")
	f.StringVar(&a.serverURL, "server", os.Getenv("SETPLAYER_SERVER"), "drive a remote server instead of a local session")
	f.StringVar(&a.apiKey, "api-key", os.Getenv("SETPLAYER_AUTH_API_KEY"), "API key for --server")
	f.StringArrayVar(&a.choices, "choice", nil, "answer a prompt in advance: kind=role[,field=value]")
	f.BoolVar(&a.noInput, "no-input", false, "never prompt; unanswered prompts are printed instead")

	root.AddCommand(
		a.startCmd(),
		a.statusCmd(),
		a.logCmd(),
		a.simpleCmd("skip", "Skip the active set (a whole round in a superset)", "skip-set"),
		a.indexCmd("skip-exercise", "Skip an exercise and its superset", "skip"),
		a.indexCmd("defer", "Leave an exercise for later", "defer"),
		a.indexCmd("jump", "Make an exercise the active one", "jump"),
		a.simpleCmd("deferred", "Take up the exercises left for later", "deferred"),
		a.simpleCmd("pause", "Pause the workout", "pause"),
		a.simpleCmd("resume", "Resume a paused workout", "resume"),
		a.restCmd(),
		a.timerCmd(),
		a.emomCmd(),
		a.finishCmd(),
		a.plansCmd(),
		a.importCmd(),
	)
	return root
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	root := NewRoot()
	if err := root.ExecuteContext(context.Background()); err != nil {
		if p, ok := session.IsDecisionRequired(err); ok {
			renderPrompt(os.Stderr, p)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// setup picks the driver and the prompter for this invocation.
func (a *app) setup(cmd *cobra.Command) error {
	decisions, err := parseChoices(a.choices)
	if err != nil {
		return err
	}
	a.prompter = decisions
	if len(decisions) == 0 && !a.noInput && term.IsTerminal(os.Stdin.Fd()) {
		a.prompter = HuhPrompter{}
	}
	cmd.SetContext(session.WithPrompter(cmd.Context(), a.prompter))

	if a.serverURL != "" {
		a.drv = client.New(a.serverURL, a.apiKey)
		return nil
	}

	engine := session.Config{}
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		engine = cfg.Session.Engine()
		if a.storeDir == "" {
			a.storeDir = cfg.Store.Dir
		}
		if a.plansDir == "" {
			a.plansDir = cfg.Plans.Dir
		}
	}
	if a.storeDir == "" {
		a.storeDir = defaultStoreDir()
	}

	store, err := localstore.Open(a.storeDir)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	a.store = store

	deps := session.Deps{
		Plans:   store,
		History: store,
		Store:   store,
		Logger:  slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if a.plansDir != "" {
		deps.Plans = plans.Dir{Path: a.plansDir}
	}
	mgr := session.NewManager(deps, engine)
	// Runs before the store closes.
	a.closers = append([]func(context.Context) error{mgr.Close}, a.closers...)
	a.drv = &localDriver{sessions: mgr}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var first error
	for _, c := range a.closers {
		if err := c(ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func defaultStoreDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/setplayer"
	}
	return ".setplayer"
}

// show prints v after settling any completion prompt it is waiting on.
func (a *app) show(cmd *cobra.Command, v *session.View) error {
	v, err := a.settle(cmd, v)
	if err != nil {
		return err
	}
	if v != nil {
		renderView(cmd.OutOrStdout(), v)
	}
	return nil
}

// settle answers the prompt the session waits on once no work is pending:
// take up deferred exercises, finish, or keep going.
func (a *app) settle(cmd *cobra.Command, v *session.View) (*session.View, error) {
	if v == nil || v.Awaiting == nil || v.State != session.StatePlaying {
		return v, nil
	}
	ctx := cmd.Context()
	r, err := session.Ask(ctx, *v.Awaiting)
	if _, ok := session.IsDecisionRequired(err); ok {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	switch r.Role {
	case session.RoleDoNow:
		return a.drv.Simple(ctx, "deferred")
	case session.RoleFinish:
		res, v, err := a.drv.Finish(ctx, session.FinishNormal)
		if err != nil {
			return nil, err
		}
		renderResult(cmd.OutOrStdout(), res)
		return v, nil
	}
	return v, nil
}

// run wraps a command body so the session is flushed and the store closed
// whether or not the body fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := a.teardown(cmd.Context()); err == nil {
			err = cerr
		}
		return err
	}
}
