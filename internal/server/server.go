package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claude/setplayer/internal/metrics"
	"github.com/claude/setplayer/internal/session"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions *session.Manager
	plans    session.PlanProvider
	history  session.HistoryProvider
	metrics  *metrics.Manager
	log      *slog.Logger
	apiKey   string
	router   chi.Router
}

// New creates a new Server with all routes configured. plans and history
// may be nil; their routes then answer 404.
func New(sessions *session.Manager, plans session.PlanProvider, history session.HistoryProvider,
	m *metrics.Manager, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		sessions: sessions,
		plans:    plans,
		history:  history,
		metrics:  m,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	if s.metrics != nil {
		s.router.Use(RequestMetrics(s.metrics))
	}
	s.router.Use(CORS)

	// Read endpoints (no auth; tsnet handles access)
	s.router.Get("/api/v1/plans/{id}", s.handleGetPlan)
	s.router.Get("/api/v1/exercises/{id}/last", s.handleLastPerformance)

	s.router.Route("/api/v1/session", func(r chi.Router) {
		r.Get("/", s.handleView)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			s.sessionRoutes(r)
		})
	})
}

// sessionRoutes registers the operations that change the live session.
func (s *Server) sessionRoutes(r chi.Router) {
	r.Post("/", s.handleOpen)

	r.Post("/log", s.handleLogSet)
	r.Post("/skip-set", s.simpleOp("skip_set", (*session.Session).SkipSet))
	r.Post("/pause", s.simpleOp("pause", (*session.Session).Pause))
	r.Post("/resume", s.simpleOp("resume", (*session.Session).Resume))
	r.Post("/flush", s.simpleOp("flush", (*session.Session).Flush))
	r.Post("/deferred", s.simpleOp("resume_deferred", (*session.Session).ResumeDeferred))
	r.Post("/finish", s.handleFinish)

	r.Post("/exercises", s.handleAddExercise)
	r.Route("/exercises/{index}", func(r chi.Router) {
		r.Delete("/", s.indexOp("remove_exercise", (*session.Session).RemoveExercise))
		r.Post("/skip", s.indexOp("skip_exercise", (*session.Session).SkipExercise))
		r.Post("/defer", s.indexOp("defer_exercise", (*session.Session).DeferExercise))
		r.Post("/jump", s.indexOp("jump_to", (*session.Session).JumpTo))
		r.Post("/switch", s.handleSwitchExercise)
		r.Post("/sets", s.handleAddSet)
		r.Delete("/sets/{set}", s.handleRemoveSet)
		r.Put("/sets/{set}/target", s.handleUpdateTarget)
	})

	r.Post("/supersets", s.handleCreateSuperset)
	r.Delete("/supersets/{id}", s.handleBreakSuperset)
	r.Post("/supersets/{id}/extend", s.handleExtendSuperset)

	r.Post("/rest/skip", s.simpleOp("skip_rest", (*session.Session).SkipRest))
	r.Post("/rest/extend", s.handleExtendRest)
	r.Post("/rest/pause", s.simpleOp("pause_rest", (*session.Session).PauseRest))
	r.Post("/rest/resume", s.simpleOp("resume_rest", (*session.Session).ResumeRest))

	r.Post("/timed-set/start", s.simpleOp("start_timed_set", (*session.Session).StartTimedSet))
	r.Post("/timed-set/pause", s.simpleOp("pause_timed_set", (*session.Session).PauseTimedSet))
	r.Post("/timed-set/reset", s.simpleOp("reset_timed_set", (*session.Session).ResetTimedSet))

	r.Post("/emom/start", s.simpleOp("start_emom", (*session.Session).StartEmom))
	r.Post("/emom/pause", s.simpleOp("pause_emom", (*session.Session).PauseEmom))
	r.Post("/emom/resume", s.simpleOp("resume_emom", (*session.Session).ResumeEmom))
	r.Post("/emom/complete", s.simpleOp("complete_round", (*session.Session).CompleteRound))
}

// SetMCP mounts an MCP transport at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.router.Handle("/mcp", h)
}

// SetMetricsHandler exposes h at /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.router.Handle("/metrics", h)
}
