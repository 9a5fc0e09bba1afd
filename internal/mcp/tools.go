package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repcam/internal/archive"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/exercise"
)

// --- Tool definitions ---

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List the exercises the rep counter supports, with the tracked joint triple, default down/up angles, safe zone, debounce and form hint categories."),
)

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List live camera sessions with rep counts, partial reps, current phase and frame statistics."),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get the current summary of one live camera session."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID as supplied by the client when the session started")),
)

var toolRecentSessions = mcp.NewTool("recent_sessions",
	mcp.WithDescription("Finished sessions from the archive, newest first. Includes sessions ended by the client and sessions evicted after going idle."),
	mcp.WithString("exercise", mcp.Description("Filter by exercise type"), mcp.Enum(exerciseNames()...)),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 20."), mcp.Min(1), mcp.Max(500)),
)

func exerciseNames() []string {
	types := exercise.Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// --- Tool handlers ---

func (h *handlers) listExercises(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cat, err := h.ds.ListExercises(ctx)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(cat)
}

func (h *handlers) listSessions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := h.ds.ListSessions(ctx)
	if err != nil {
		h.log.Error("mcp list_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(sessions)
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}

	s, err := h.ds.GetSession(ctx, id)
	if errors.Is(err, engine.ErrUnknownSession) {
		return mcp.NewToolResultError("session not found: " + id), nil
	}
	if err != nil {
		h.log.Error("mcp get_session", "session_id", id, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(s)
}

func (h *handlers) recentSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ex := req.GetString("exercise", "")
	if ex != "" {
		if _, err := exercise.Lookup(exercise.Type(ex)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	limit := req.GetInt("limit", archive.DefaultRecentLimit)

	recs, err := h.ds.RecentSessions(ctx, ex, limit)
	if err != nil {
		h.log.Error("mcp recent_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(recs)
}

func jsonResult[T any](v T) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
