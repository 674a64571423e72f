package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/claude/setplayer/internal/importer"
	"github.com/claude/setplayer/internal/plans"
	"github.com/claude/setplayer/internal/session"
)

func (a *app) startCmd() *cobra.Command {
	var (
		adHoc bool
		name  string
	)
	cmd := &cobra.Command{
		Use:   "start [plan-id]",
		Short: "Start a workout from a plan, or resume the one in progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var planID string
			switch {
			case len(args) == 1 && adHoc:
				return errors.New("--ad-hoc takes no plan id")
			case len(args) == 1:
				planID = args[0]
			case !adHoc:
				return errors.New("give a plan id or --ad-hoc")
			}
			v, resumed, err := a.drv.Open(cmd.Context(), planID, name)
			if err != nil {
				return err
			}
			if resumed {
				fmt.Fprintln(cmd.OutOrStdout(), "Resuming workout.")
			}
			return a.show(cmd, v)
		}),
	}
	cmd.Flags().BoolVar(&adHoc, "ad-hoc", false, "start an empty session with no plan")
	cmd.Flags().StringVar(&name, "name", "", "name of an ad-hoc session")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the workout in progress",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			v, err := a.drv.View(cmd.Context())
			if errors.Is(err, session.ErrNoSession) {
				fmt.Fprintln(cmd.OutOrStdout(), "no active session")
				return nil
			}
			if err != nil {
				return err
			}
			renderView(cmd.OutOrStdout(), v)
			return nil
		}),
	}
}

func (a *app) logCmd() *cobra.Command {
	var (
		reps, weight, duration, distance, rpe float64
		notes                                 string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log the active set and move on",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			in := session.SetInput{Notes: notes}
			flags := cmd.Flags()
			for name, dst := range map[string]**float64{
				"reps":     &in.Reps,
				"weight":   &in.Weight,
				"duration": &in.Duration,
				"distance": &in.Distance,
				"rpe":      &in.RPE,
			} {
				if flags.Changed(name) {
					v, _ := flags.GetFloat64(name)
					*dst = &v
				}
			}
			v, err := a.drv.LogSet(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.show(cmd, v)
		}),
	}
	f := cmd.Flags()
	f.Float64VarP(&reps, "reps", "r", 0, "repetitions")
	f.Float64VarP(&weight, "weight", "w", 0, "load in kg")
	f.Float64VarP(&duration, "duration", "d", 0, "seconds")
	f.Float64Var(&distance, "distance", 0, "metres")
	f.Float64Var(&rpe, "rpe", 0, "rate of perceived exertion (0-10)")
	f.StringVar(&notes, "notes", "", "note for the set")
	return cmd
}

// simpleCmd runs an argument-free session operation.
func (a *app) simpleCmd(use, short, op string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			v, err := a.drv.Simple(cmd.Context(), op)
			if err != nil {
				return err
			}
			return a.show(cmd, v)
		}),
	}
}

// indexCmd runs an operation on the exercise at the given routine position.
func (a *app) indexCmd(use, short, op string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <index>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil || idx < 0 {
				return fmt.Errorf("index must be a non-negative integer, got %q", args[0])
			}
			v, err := a.drv.Indexed(cmd.Context(), op, idx)
			if err != nil {
				return err
			}
			return a.show(cmd, v)
		}),
	}
}

func (a *app) restCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rest", Short: "Control the rest timer"}
	cmd.AddCommand(
		a.simpleCmd("skip", "End the rest now", "rest/skip"),
		a.simpleCmd("pause", "Pause the rest countdown", "rest/pause"),
		a.simpleCmd("resume", "Resume the rest countdown", "rest/resume"),
		&cobra.Command{
			Use:   "extend <seconds>",
			Short: "Add time to the rest",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				secs, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("seconds must be a number, got %q", args[0])
				}
				v, err := a.drv.ExtendRest(cmd.Context(), secs)
				if err != nil {
					return err
				}
				return a.show(cmd, v)
			}),
		},
	)
	return cmd
}

func (a *app) timerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "timer", Short: "Control the timer of a timed set"}
	cmd.AddCommand(
		a.simpleCmd("start", "Start or resume the timer", "timed-set/start"),
		a.simpleCmd("pause", "Pause the timer", "timed-set/pause"),
		a.simpleCmd("reset", "Reset the timer to zero", "timed-set/reset"),
	)
	return cmd
}

func (a *app) emomCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "emom", Short: "Control an EMOM block"}
	cmd.AddCommand(
		a.simpleCmd("start", "Start the EMOM clock", "emom/start"),
		a.simpleCmd("pause", "Pause the EMOM clock", "emom/pause"),
		a.simpleCmd("resume", "Resume the EMOM clock", "emom/resume"),
		a.simpleCmd("complete", "Log the current round now", "emom/complete"),
	)
	return cmd
}

func (a *app) finishCmd() *cobra.Command {
	var early, quit bool
	cmd := &cobra.Command{
		Use:   "finish",
		Short: "End the workout and save it",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			mode := session.FinishNormal
			switch {
			case early && quit:
				return errors.New("--early and --quit are exclusive")
			case early:
				mode = session.FinishEarly
			case quit:
				mode = session.FinishQuit
			}
			res, _, err := a.drv.Finish(cmd.Context(), mode)
			if err != nil {
				return err
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&early, "early", false, "finish with sets still pending")
	cmd.Flags().BoolVar(&quit, "quit", false, "abandon the workout without saving")
	return cmd
}

func (a *app) plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List the plans in --plans-dir",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if a.plansDir == "" {
				return errors.New("no plans directory; set --plans-dir")
			}
			ids, err := plans.Dir{Path: a.plansDir}.List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		}),
	}
}

func (a *app) importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Copy the plan files of a directory into the local store",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if a.store == nil {
				return errors.New("import works on the local store only; drop --server")
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			stats, err := importer.New(a.store, log, dryRun).Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d updated, %d unchanged, %d rejected\n",
				stats.PlansCreated, stats.PlansUpdated, stats.FilesSkipped, stats.FilesErrored)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}
