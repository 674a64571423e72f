package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/setplayer/internal/session"
)

// New creates an MCP server whose tools drive the live session held by
// sessions.
func New(sessions *session.Manager, history session.HistoryProvider, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("SetPlayer", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("SetPlayer runs one live workout at a time. Start or resume it with start_session, "+
			"then log sets in the order given by the session's active set. When a tool answers with a decision, "+
			"show the choices to the user and call the tool again with the chosen role in the decision argument."),
	)

	h := &handlers{sessions: sessions, history: history, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolStartSession, Handler: h.startSession},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolLogSet, Handler: h.logSet},
		server.ServerTool{Tool: toolSkipSet, Handler: h.simple("skip_set", (*session.Session).SkipSet)},
		server.ServerTool{Tool: toolSkipExercise, Handler: h.indexed((*session.Session).SkipExercise)},
		server.ServerTool{Tool: toolDeferExercise, Handler: h.indexed((*session.Session).DeferExercise)},
		server.ServerTool{Tool: toolJumpTo, Handler: h.indexed((*session.Session).JumpTo)},
		server.ServerTool{Tool: toolResumeDeferred, Handler: h.simple("resume_deferred", (*session.Session).ResumeDeferred)},
		server.ServerTool{Tool: toolAddExercise, Handler: h.addExercise},
		server.ServerTool{Tool: toolAddSet, Handler: h.addSet},
		server.ServerTool{Tool: toolSkipRest, Handler: h.simple("skip_rest", (*session.Session).SkipRest)},
		server.ServerTool{Tool: toolExtendRest, Handler: h.extendRest},
		server.ServerTool{Tool: toolCompleteRound, Handler: h.simple("complete_round", (*session.Session).CompleteRound)},
		server.ServerTool{Tool: toolPause, Handler: h.simple("pause", (*session.Session).Pause)},
		server.ServerTool{Tool: toolResume, Handler: h.simple("resume", (*session.Session).Resume)},
		server.ServerTool{Tool: toolFinish, Handler: h.finish},
		server.ServerTool{Tool: toolExerciseHistory, Handler: h.exerciseHistory},
	)

	s.AddResources(
		server.ServerResource{Resource: resSession, Handler: h.sessionResource},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	sessions *session.Manager
	history  session.HistoryProvider
	log      *slog.Logger
}

var resSession = mcp.NewResource(
	"setplayer://session",
	"Live Session",
	mcp.WithResourceDescription("The live workout: active set, timers, routine and progress"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) sessionResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sess, err := h.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(sess.View())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
