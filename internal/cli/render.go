package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	activeStyle = lipgloss.NewStyle().
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	restStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

func seconds2duration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// clock formats seconds as m:ss, or h:mm:ss past an hour.
func clock(secs float64) string {
	d := seconds2duration(secs).Round(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func trim(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

// describeTarget renders a target like "8-10 reps · 60 kg".
func describeTarget(t models.Target) string {
	var parts []string
	if s := t.Reps.String(); s != "" {
		parts = append(parts, s+" reps")
	}
	if s := t.Weight.String(); s != "" {
		parts = append(parts, s+" kg")
	}
	if s := t.Duration.String(); s != "" {
		parts = append(parts, s+" s")
	}
	if s := t.Distance.String(); s != "" {
		parts = append(parts, s+" m")
	}
	if len(parts) == 0 {
		return "open"
	}
	return strings.Join(parts, " · ")
}

// describeSet renders a logged set like "8×60".
func describeSet(s models.LoggedSet) string {
	switch {
	case s.Reps != nil && s.Weight != nil:
		return trim(*s.Reps) + "×" + trim(*s.Weight)
	case s.Reps != nil:
		return trim(*s.Reps) + " reps"
	case s.Duration != nil:
		return trim(*s.Duration) + " s"
	case s.Distance != nil:
		return trim(*s.Distance) + " m"
	}
	return "done"
}

// renderView prints the session the way a player screen would show it.
func renderView(w io.Writer, v *session.View) {
	header := fmt.Sprintf("%s · %s · %s", v.PlanName, v.State, clock(v.ElapsedSeconds))
	fmt.Fprintln(w, titleStyle.Render(header))

	if a := v.Active; a != nil {
		pos := fmt.Sprintf("set %d/%d", a.SetIndex+1, len(a.Exercise.Sets))
		if a.TotalBlockRounds > 0 && len(a.Members) > 0 {
			pos = fmt.Sprintf("round %d/%d", a.SetIndex+1, a.TotalBlockRounds)
		}
		line := fmt.Sprintf("▶ [%d] %s  %s  %s", a.ExerciseIndex, a.Exercise.ExerciseName, pos, describeTarget(a.Set.Target))
		if a.Set.Type == models.SetWarmup {
			line += " (warm-up)"
		}
		fmt.Fprintln(w, activeStyle.Render(line))
		if v.PrimaryAction != "" {
			fmt.Fprintln(w, mutedStyle.Render("  next action: "+v.PrimaryAction))
		}
	}

	if sg := v.Suggestion; sg != nil && sg.LastPerformance != nil {
		var sets []string
		for _, s := range sg.LastPerformance.Sets {
			sets = append(sets, describeSet(s))
		}
		fmt.Fprintln(w, mutedStyle.Render("  last time: "+strings.Join(sets, ", ")))
	}

	if v.Rest.Visible {
		line := "Rest " + clock(v.Rest.RemainingSeconds)
		if !v.Rest.Running {
			line += " (paused)"
		}
		if v.Rest.NextText != "" {
			line += " → " + v.Rest.NextText
		}
		fmt.Fprintln(w, restStyle.Render(line))
	}
	if ts := v.TimedSet; ts.State != "" && ts.ElapsedSeconds > 0 {
		fmt.Fprintln(w, restStyle.Render(fmt.Sprintf("Timer %s (%s)", clock(ts.ElapsedSeconds), ts.State)))
	}
	if e := v.Emom; e.Active {
		fmt.Fprintln(w, restStyle.Render(fmt.Sprintf("EMOM round %d/%d · %s left", e.Round, e.TotalRounds, clock(e.RemainingSeconds))))
	}

	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d sets logged, %d to go", v.LoggedSets, v.PendingSets)))

	if p := v.Awaiting; p != nil {
		renderPrompt(w, *p)
	}
	if v.Error != "" {
		fmt.Fprintln(w, promptStyle.Render("error: "+v.Error))
	}
}

// renderPrompt lists a prompt's choices with the --choice value for each.
func renderPrompt(w io.Writer, p session.Prompt) {
	fmt.Fprintln(w, promptStyle.Render("? "+p.Title))
	if p.Message != "" {
		fmt.Fprintln(w, "  "+p.Message)
	}
	for _, c := range p.Choices {
		fmt.Fprintf(w, "  --choice %s=%s  %s\n", p.Kind, c.Role, mutedStyle.Render(c.Label))
	}
}

func renderResult(w io.Writer, res *session.Result) {
	switch res.Kind {
	case session.ResultQuit:
		fmt.Fprintln(w, mutedStyle.Render("Workout abandoned."))
		return
	case session.ResultDiscarded:
		fmt.Fprintln(w, mutedStyle.Render("Nothing was logged; workout discarded."))
		return
	}
	msg := fmt.Sprintf("Workout saved: %d sets in %s.", res.Log.SetCount(), clock(res.Log.Duration.Seconds()))
	fmt.Fprintln(w, doneStyle.Render(msg))
	switch res.Resolution {
	case session.RoleUpdatePlan:
		fmt.Fprintln(w, "  Plan updated.")
	case session.RoleForkPlan:
		fmt.Fprintln(w, "  Saved as new plan "+res.PlanID+".")
	}
	if res.Kind == session.ResultProgramCompleted {
		fmt.Fprintln(w, doneStyle.Render("  Program completed!"))
	}
}
