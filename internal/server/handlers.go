package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/setplayer/internal/models"
	"github.com/claude/setplayer/internal/session"
)

// opRequest carries the operator's pre-supplied answers. Every mutating
// request may include it; a 409 response names the prompt that still needs
// one.
type opRequest struct {
	Decisions session.Decisions `json:"decisions,omitempty"`
}

type openRequest struct {
	opRequest
	PlanID      string                   `json:"planId"`
	Name        string                   `json:"name"`
	Exercises   []models.SessionExercise `json:"exercises"`
	ProgramID   string                   `json:"programId"`
	IterationID string                   `json:"iterationId"`
}

type openResponse struct {
	Resumed bool          `json:"resumed"`
	Session *session.View `json:"session"`
}

type logSetRequest struct {
	opRequest
	session.SetInput
}

type finishRequest struct {
	opRequest
	Mode session.FinishMode `json:"mode"`
}

type finishResponse struct {
	Result  *session.Result `json:"result"`
	Session *session.View   `json:"session"`
}

type addExerciseRequest struct {
	opRequest
	session.NewExercise
}

type switchRequest struct {
	opRequest
	ExerciseID   string `json:"exerciseId"`
	ExerciseName string `json:"exerciseName"`
}

type targetRequest struct {
	opRequest
	Target models.Target `json:"target"`
}

type supersetRequest struct {
	opRequest
	From            int              `json:"from"`
	To              int              `json:"to"`
	Type            models.BlockType `json:"type"`
	IntervalSeconds int              `json:"intervalSeconds"`
}

type extendSupersetRequest struct {
	opRequest
	Index int `json:"index"`
}

type extendRestRequest struct {
	opRequest
	Seconds float64 `json:"seconds"`
}

type createdResponse struct {
	Index   *int          `json:"index,omitempty"`
	ID      string        `json:"id,omitempty"`
	Session *session.View `json:"session"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeBody(w, r, &req) {
		return
	}
	origin := models.AdHoc()
	if req.PlanID != "" {
		origin = models.FromPlan(req.PlanID)
	}
	ctx := session.WithPrompter(r.Context(), req.Decisions)
	sess, resumed, err := s.sessions.Open(ctx, session.StartOptions{
		Origin:      origin,
		Name:        req.Name,
		Exercises:   req.Exercises,
		ProgramID:   req.ProgramID,
		IterationID: req.IterationID,
	})
	s.count("open", err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, openResponse{Resumed: resumed, Session: sess.View()})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleLogSet(w http.ResponseWriter, r *http.Request) {
	var req logSetRequest
	s.op(w, r, "log_set", &req, &req.opRequest, func(ctx context.Context, sess *session.Session) (any, error) {
		return nil, sess.LogSet(ctx, req.SetInput)
	})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = session.FinishNormal
	}
	sess, err := s.sessions.Current(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := sess.Finish(session.WithPrompter(r.Context(), req.Decisions), req.Mode)
	s.count("finish", err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.CounterWorkouts.WithLabelValues(string(res.Kind)).Inc()
	}
	writeJSON(w, http.StatusOK, finishResponse{Result: res, Session: sess.View()})
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	var req addExerciseRequest
	s.op(w, r, "add_exercise", &req, &req.opRequest, func(ctx context.Context, sess *session.Session) (any, error) {
		idx, err := sess.AddExercise(ctx, req.NewExercise)
		if err != nil {
			return nil, err
		}
		return createdResponse{Index: &idx, Session: sess.View()}, nil
	})
}

func (s *Server) handleSwitchExercise(w http.ResponseWriter, r *http.Request) {
	idx, ok := pathInt(w, r, "index")
	if !ok {
		return
	}
	var req switchRequest
	s.op(w, r, "switch_exercise", &req, &req.opRequest, func(ctx context.Context, sess *session.Session) (any, error) {
		return nil, sess.SwitchExercise(ctx, idx, req.ExerciseID, req.ExerciseName)
	})
}

func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	idx, ok := pathInt(w, r, "index")
	if !ok {
		return
	}
	var req opRequest
	s.op(w, r, "add_set", &req, &req, func(ctx context.Context, sess *session.Session) (any, error) {
		n, err := sess.AddSet(ctx, idx)
		if err != nil {
			return nil, err
		}
		return createdResponse{Index: &n, Session: sess.View()}, nil
	})
}

func (s *Server) handleRemoveSet(w http.ResponseWriter, r *http.Request) {
	idx, ok := pathInt(w, r, "index")
	if !ok {
		return
	}
	set, ok := pathInt(w, r, "set")
	if !ok {
		return
	}
	var req opRequest
	s.op(w, r, "remove_set", &req, &req, func(ctx context.Context, sess *session.Session) (any, error) {
		return nil, sess.RemoveSet(ctx, idx, set)
	})
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	idx, ok := pathInt(w, r, "index")
	if !ok {
		return
	}
	set, ok := pathInt(w, r, "set")
	if !ok {
		return
	}
	var req targetRequest
	s.op(w, r, "update_target", &req, &req.opRequest, func(ctx context.Context, sess *session.Session) (any, error) {
		return nil, sess.UpdateSetTarget(ctx, idx, set, req.Target)
	})
}

func (s *Server) handleCreateSuperset(w http.ResponseWriter, r *http.Request) {
	var req supersetRequest
	s.op(w, r, "create_superset", &req, &req.opRequest, func(ctx context.Context, sess *session.Session) (any, error) {
		if req.Type == "" {
			req.Type = models.BlockSuperset
		}
		id, err := sess.CreateSuperset(ctx, req.From, req.To, req.Type, req.IntervalSeconds)
		if err != nil {
			return nil, err
		}
		return createdResponse{ID: id, Session: sess.View()}, nil
	})
}

func (s *Server) handleBreakSuperset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req opRequest
	s.op(w, r, "break_superset", &req, &req, func(ctx context.Context, sess *session.Session) (any, error) {
		return nil, sess.BreakSuperset(ctx, id)
	})
}

func (s *Server) handleExtendSuperset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req extendSupersetRequest
	s.op(w, r, "extend_superset", &req, &req.opRequest, func(ctx context.Context, sess *session.Session) (any, error) {
		return nil, sess.ExtendSuperset(ctx, id, req.Index)
	})
}

func (s *Server) handleExtendRest(w http.ResponseWriter, r *http.Request) {
	var req extendRestRequest
	s.op(w, r, "extend_rest", &req, &req.opRequest, func(ctx context.Context, sess *session.Session) (any, error) {
		return nil, sess.ExtendRest(ctx, time.Duration(req.Seconds*float64(time.Second)))
	})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	if s.plans == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no plan store configured"})
		return
	}
	plan, err := s.plans.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleLastPerformance(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no history configured"})
		return
	}
	id := chi.URLParam(r, "id")
	last, err := s.history.LastPerformance(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pb, err := s.history.PersonalBests(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Suggestion{LastPerformance: last, PersonalBests: pb})
}

// simpleOp adapts a session operation that takes no arguments.
func (s *Server) simpleOp(name string, fn func(*session.Session, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req opRequest
		s.op(w, r, name, &req, &req, func(ctx context.Context, sess *session.Session) (any, error) {
			return nil, fn(sess, ctx)
		})
	}
}

// indexOp adapts a session operation addressed by the {index} URL param.
func (s *Server) indexOp(name string, fn func(*session.Session, context.Context, int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, ok := pathInt(w, r, "index")
		if !ok {
			return
		}
		var req opRequest
		s.op(w, r, name, &req, &req, func(ctx context.Context, sess *session.Session) (any, error) {
			return nil, fn(sess, ctx, idx)
		})
	}
}

// op decodes body into req, runs fn on the current session with the
// request's decisions attached, and writes fn's response or, when it returns
// nil, the session view.
func (s *Server) op(w http.ResponseWriter, r *http.Request, name string, body any, req *opRequest,
	fn func(context.Context, *session.Session) (any, error)) {
	if !decodeBody(w, r, body) {
		return
	}
	sess, err := s.sessions.Current(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := fn(session.WithPrompter(r.Context(), req.Decisions), sess)
	s.count(name, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if out == nil {
		out = sess.View()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) count(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.CounterOperations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := session.IsDecisionRequired(err); ok {
		return "decision_required"
	}
	return "error"
}

// decisionResponse is the body of a 409 for an unanswered prompt.
type decisionResponse struct {
	Error    string         `json:"error"`
	Decision session.Prompt `json:"decision"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if p, ok := session.IsDecisionRequired(err); ok {
		writeJSON(w, http.StatusConflict, decisionResponse{Error: err.Error(), Decision: p})
		return
	}
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrPlanNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrMalformedPlan):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrStructureLocked), errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrCancelled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error("session operation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
	return false
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
