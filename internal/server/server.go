package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/repcam/internal/archive"
	"github.com/claude/repcam/internal/detector"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/metrics"
	"github.com/claude/repcam/internal/pose"
)

// Detector turns a camera image into keypoints.
type Detector interface {
	Detect(ctx context.Context, req detector.Request) ([]pose.Keypoint, error)
}

// Deps are the collaborators the HTTP layer needs. Engine, Log and APIKey are
// required; the rest may be nil.
type Deps struct {
	Engine   *engine.Engine
	Archive  archive.Archive
	Detector Detector
	Metrics  *metrics.Manager
	Gatherer prometheus.Gatherer
	MCP      http.Handler
	APIKey   string
	Log      *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine   *engine.Engine
	archive  archive.Archive
	detector Detector
	metrics  *metrics.Manager
	log      *slog.Logger
	apiKey   string
	whois    WhoIsClient
	events   *eventHub
	router   chi.Router
}

// New creates a new Server with all routes configured.
func New(d Deps) *Server {
	arc := d.Archive
	if arc == nil {
		arc = archive.Nop{}
	}
	s := &Server{
		engine:   d.Engine,
		archive:  arc,
		detector: d.Detector,
		metrics:  d.Metrics,
		log:      d.Log,
		apiKey:   d.APIKey,
		events:   newEventHub(),
		router:   chi.NewRouter(),
	}
	s.routes(d.Gatherer, d.MCP)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale enables identity lookup of callers on the tailnet.
func (s *Server) SetTailscale(lc WhoIsClient) {
	s.whois = lc
}

func (s *Server) routes(gatherer prometheus.Gatherer, mcpHandler http.Handler) {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	if s.metrics != nil {
		s.router.Use(Metrics(s.metrics))
	}
	s.router.Use(s.identity)

	s.router.Get("/healthz", s.handleHealth)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Get("/me", s.handleMe)
		r.Get("/exercises", s.handleExercises)
		r.Get("/history", s.handleHistory)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleEndSession)
		r.Post("/sessions/{id}/frames", s.handleFrame)
		r.Post("/sessions/{id}/analyze", s.handleAnalyze)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)
	})

	if mcpHandler != nil {
		s.router.With(APIKeyAuth(s.apiKey)).Handle("/mcp", mcpHandler)
	}
}

// identity picks Tailscale or local identity per request, so SetTailscale
// can be called after the routes are built.
func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois != nil {
			TailscaleIdentity(s.whois, s.log)(next).ServeHTTP(w, r)
			return
		}
		dev.ServeHTTP(w, r)
	})
}

// OnEvict archives a session the engine dropped for inactivity and tells any
// event subscribers it is gone.
func (s *Server) OnEvict(fs engine.FinalSummary) {
	ctx, cancel := contextWithTimeout()
	defer cancel()
	s.finish(ctx, fs)
}

func (s *Server) finish(ctx context.Context, fs engine.FinalSummary) {
	err := s.archive.Save(ctx, fs)
	if s.metrics != nil {
		s.metrics.ArchiveSaved(err)
	}
	if err != nil {
		s.log.Error("archive save failed", "session_id", fs.SessionID, "error", err)
	}
	s.events.publish(fs.SessionID, sseEvent{Event: "ended", Data: mustJSON(fs)})
	s.events.close(fs.SessionID)
}
