package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("repcam", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("repcam rep-counting server. Inspect supported exercises, live camera sessions with their rep counts and phases, and the archive of finished sessions."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListExercises, Handler: h.listExercises},
		server.ServerTool{Tool: toolListSessions, Handler: h.listSessions},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolRecentSessions, Handler: h.recentSessions},
	)

	s.AddResources(
		server.ServerResource{Resource: resExerciseCatalog, Handler: h.exerciseCatalog},
		server.ServerResource{Resource: resLiveSessions, Handler: h.liveSessions},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

var resExerciseCatalog = mcp.NewResource(
	"repcam://exercise_catalog",
	"Exercise Catalog",
	mcp.WithResourceDescription("Supported exercises with tracked joints, default thresholds and form hint categories"),
	mcp.WithMIMEType("application/json"),
)

var resLiveSessions = mcp.NewResource(
	"repcam://live_sessions",
	"Live Sessions",
	mcp.WithResourceDescription("Summaries of every camera session currently being tracked"),
	mcp.WithMIMEType("application/json"),
)
