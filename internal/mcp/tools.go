package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

// answer is a Prompter holding the single decision passed to a tool call. It
// answers whichever prompt offers that role and leaves the others open.
type answer session.Response

func (a answer) Ask(_ context.Context, p session.Prompt) (session.Response, error) {
	if a.Role == "" || !p.Allows(a.Role) {
		return session.Response{}, &session.DecisionRequiredError{Prompt: p}
	}
	return session.Response(a), nil
}

// withDecision attaches the decision and plan_name arguments to ctx.
func withDecision(ctx context.Context, req mcp.CallToolRequest) context.Context {
	a := answer{Role: req.GetString("decision", "")}
	if name := req.GetString("plan_name", ""); name != "" {
		a.Data = map[string]string{"name": name}
	}
	return session.WithPrompter(ctx, a)
}

// optFloat returns the numeric argument key, or nil when it was not given.
func optFloat(req mcp.CallToolRequest, key string) *float64 {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

// decisionResult is returned instead of an error when the operation needs
// the user to choose.
type decisionResult struct {
	Decision session.Prompt `json:"decision"`
	Hint     string         `json:"hint"`
}

// outcome converts a session operation's result into a tool result.
func (h *handlers) outcome(op string, v any, err error) (*mcp.CallToolResult, error) {
	if p, ok := session.IsDecisionRequired(err); ok {
		return jsonResult(decisionResult{
			Decision: p,
			Hint:     "call " + op + " again with decision set to one of the choice roles",
		})
	}
	if err != nil {
		var verr *session.ValidationError
		if !errors.As(err, &verr) && !errors.Is(err, session.ErrInvalidState) &&
			!errors.Is(err, session.ErrStructureLocked) && !errors.Is(err, session.ErrNoSession) {
			h.log.Error("mcp "+op, "error", err)
		}
		return mcp.NewToolResultError(op + " failed: " + err.Error()), nil
	}
	return jsonResult(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

var decisionArgs = []mcp.ToolOption{
	mcp.WithString("decision", mcp.Description("Role of the chosen answer when a previous call returned a decision (e.g. skip_exercise, log_as_is, fork_plan)")),
	mcp.WithString("plan_name", mcp.Description("Name for a new plan when deciding fork_plan")),
}

func tool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)
	return mcp.NewTool(name, append(opts, decisionArgs...)...)
}

var indexArg = mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based position of the exercise in the routine"))

// --- Tool definitions ---

var toolStartSession = mcp.NewTool("start_session",
	mcp.WithDescription("Start a workout from a plan, or resume it if it is already running. Without plan_id an empty ad-hoc session starts (or the running ad-hoc session resumes)."),
	mcp.WithString("plan_id", mcp.Description("Plan to play. Omit for an ad-hoc session.")),
	mcp.WithString("name", mcp.Description("Name of an ad-hoc session")),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Current state of the live workout: active set with its target, rest and timers, routine and logged sets."),
)

var toolLogSet = tool("log_set",
	"Log the active set with the values performed and advance to the next set.",
	mcp.WithNumber("reps", mcp.Description("Repetitions performed")),
	mcp.WithNumber("weight", mcp.Description("Load in kg")),
	mcp.WithNumber("duration", mcp.Description("Seconds, for timed sets")),
	mcp.WithNumber("distance", mcp.Description("Metres")),
	mcp.WithNumber("rpe", mcp.Description("Rate of perceived exertion, 0-10")),
	mcp.WithString("notes", mcp.Description("Free-text note for the set")),
)

var toolSkipSet = tool("skip_set", "Skip the active set. In a superset the whole round is skipped.")

var toolSkipExercise = tool("skip_exercise", "Skip an exercise (and its whole superset).", indexArg)

var toolDeferExercise = tool("defer_exercise", "Leave an exercise for later in the workout.", indexArg)

var toolJumpTo = tool("jump_to", "Make an exercise the active one. Jumping to a logged exercise restarts it.", indexArg)

var toolResumeDeferred = tool("resume_deferred", "Take up the exercises left for later.")

var toolAddExercise = tool("add_exercise",
	"Insert a new exercise after the active one.",
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Catalog id of the exercise")),
	mcp.WithString("exercise_name", mcp.Required(), mcp.Description("Display name")),
	mcp.WithNumber("sets", mcp.Description("Number of sets. Defaults to 3.")),
	mcp.WithNumber("reps", mcp.Description("Target reps per set")),
	mcp.WithNumber("weight", mcp.Description("Target load in kg")),
)

var toolAddSet = tool("add_set", "Append a set to an exercise. In a superset every member gains a round.", indexArg)

var toolSkipRest = tool("skip_rest", "End the running rest period now.")

var toolExtendRest = tool("extend_rest",
	"Add time to the running rest period.",
	mcp.WithNumber("seconds", mcp.Required(), mcp.Description("Seconds to add")),
)

var toolCompleteRound = tool("complete_round", "Log the current EMOM round for every member from its plan targets.")

var toolPause = tool("pause", "Pause the workout clock and every timer.")

var toolResume = tool("resume", "Resume a paused workout.")

var toolFinish = tool("finish",
	"End the workout and save it to history.",
	mcp.WithString("mode", mcp.Description("normal needs every set done; early keeps what was logged; quit discards the workout. Defaults to normal."),
		mcp.Enum(string(session.FinishNormal), string(session.FinishEarly), string(session.FinishQuit))),
)

var toolExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Last performance and personal bests of a catalog exercise."),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Catalog id of the exercise")),
)

// --- Tool handlers ---

func (h *handlers) startSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin := models.AdHoc()
	if id := req.GetString("plan_id", ""); id != "" {
		origin = models.FromPlan(id)
	}
	sess, resumed, err := h.sessions.Open(ctx, session.StartOptions{
		Origin: origin,
		Name:   req.GetString("name", ""),
	})
	if err != nil {
		return h.outcome("start_session", nil, err)
	}
	return jsonResult(map[string]any{
		"resumed": resumed,
		"session": sess.View(),
	})
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.sessions.Current(ctx)
	if err != nil {
		return h.outcome("get_session", nil, err)
	}
	return jsonResult(sess.View())
}

// run applies fn to the current session with the call's decision attached
// and returns the resulting view.
func (h *handlers) run(ctx context.Context, req mcp.CallToolRequest, op string, fn func(context.Context, *session.Session) error) (*mcp.CallToolResult, error) {
	sess, err := h.sessions.Current(ctx)
	if err != nil {
		return h.outcome(op, nil, err)
	}
	if err := fn(withDecision(ctx, req), sess); err != nil {
		return h.outcome(op, nil, err)
	}
	return jsonResult(sess.View())
}

func (h *handlers) simple(op string, fn func(*session.Session, context.Context) error) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return h.run(ctx, req, op, func(ctx context.Context, s *session.Session) error {
			return fn(s, ctx)
		})
	}
}

func (h *handlers) indexed(fn func(*session.Session, context.Context, int) error) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idx, err := req.RequireInt("index")
		if err != nil {
			return mcp.NewToolResultError("index parameter is required"), nil
		}
		return h.run(ctx, req, req.Params.Name, func(ctx context.Context, s *session.Session) error {
			return fn(s, ctx, idx)
		})
	}
}

func (h *handlers) logSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := session.SetInput{
		Reps:     optFloat(req, "reps"),
		Weight:   optFloat(req, "weight"),
		Duration: optFloat(req, "duration"),
		Distance: optFloat(req, "distance"),
		RPE:      optFloat(req, "rpe"),
		Notes:    req.GetString("notes", ""),
	}
	return h.run(ctx, req, "log_set", func(ctx context.Context, s *session.Session) error {
		return s.LogSet(ctx, in)
	})
}

func (h *handlers) addExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	name, err := req.RequireString("exercise_name")
	if err != nil {
		return mcp.NewToolResultError("exercise_name parameter is required"), nil
	}
	n := req.GetInt("sets", 3)
	if n < 1 {
		return mcp.NewToolResultError("sets must be at least 1"), nil
	}

	var target models.Target
	if r := optFloat(req, "reps"); r != nil {
		target.Reps = models.Exact(*r)
	}
	if w := optFloat(req, "weight"); w != nil {
		target.Weight = models.Exact(*w)
	}
	ex := session.NewExercise{ExerciseID: id, ExerciseName: name}
	for i := 0; i < n; i++ {
		ex.Sets = append(ex.Sets, models.TargetSet{Type: models.SetStandard, Target: target.Clone()})
	}
	return h.run(ctx, req, "add_exercise", func(ctx context.Context, s *session.Session) error {
		_, err := s.AddExercise(ctx, ex)
		return err
	})
}

func (h *handlers) addSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError("index parameter is required"), nil
	}
	return h.run(ctx, req, "add_set", func(ctx context.Context, s *session.Session) error {
		_, err := s.AddSet(ctx, idx)
		return err
	})
}

func (h *handlers) extendRest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	secs, err := req.RequireFloat("seconds")
	if err != nil {
		return mcp.NewToolResultError("seconds parameter is required"), nil
	}
	return h.run(ctx, req, "extend_rest", func(ctx context.Context, s *session.Session) error {
		return s.ExtendRest(ctx, time.Duration(secs*float64(time.Second)))
	})
}

func (h *handlers) finish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.sessions.Current(ctx)
	if err != nil {
		return h.outcome("finish", nil, err)
	}
	mode := session.FinishMode(req.GetString("mode", string(session.FinishNormal)))
	res, err := sess.Finish(withDecision(ctx, req), mode)
	return h.outcome("finish", res, err)
}

func (h *handlers) exerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	if h.history == nil {
		return mcp.NewToolResultError("no history configured"), nil
	}
	last, err := h.history.LastPerformance(ctx, id)
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	pb, err := h.history.PersonalBests(ctx, id)
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(models.Suggestion{LastPerformance: last, PersonalBests: pb})
}
