package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"tailscale.com/tsnet"

	"github.com/claude/repcam/internal/archive"
	"github.com/claude/repcam/internal/config"
	"github.com/claude/repcam/internal/detector"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/mcp"
	"github.com/claude/repcam/internal/metrics"
	apiserver "github.com/claude/repcam/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run archive migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("repcam starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *migrateOnly {
		if cfg.Archive.Driver != "postgres" {
			log.Info("migrate-only: archive driver has no migrations", "driver", cfg.Archive.Driver)
			return
		}
		if err := archive.RunMigrations(cfg.Archive.Database.DSN(), cfg.Archive.MigrationsPath); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied, exiting")
		return
	}

	// Open archive
	ctx := context.Background()
	arc, err := archive.Open(ctx, archive.Options{
		Driver:         cfg.Archive.Driver,
		SQLitePath:     cfg.Archive.SQLitePath,
		DSN:            cfg.Archive.Database.DSN(),
		MigrationsPath: cfg.Archive.MigrationsPath,
	})
	if err != nil {
		log.Error("failed to open archive", "driver", cfg.Archive.Driver, "error", err)
		os.Exit(1)
	}
	defer arc.Close()
	log.Info("archive ready", "driver", cfg.Archive.Driver)

	// Metrics
	var (
		mgr *metrics.Manager
		reg *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		var extra []prometheus.Collector
		if pg, ok := arc.(*archive.Postgres); ok {
			extra = append(extra, pg.Collector())
		}
		reg = metrics.SetupPrometheus(extra...)
		mgr = metrics.NewManager(cfg.Metrics.Namespace, "", reg)
	}

	// Engine. The evict handler is bound once the server exists; the janitor
	// that calls it starts after that.
	var srv *apiserver.Server
	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithEvictHandler(func(fs engine.FinalSummary) { srv.OnEvict(fs) }),
	}
	if mgr != nil {
		opts = append(opts, engine.WithRecorder(mgr))
	}
	eng := engine.New(cfg.EngineOptions(), opts...)

	// Pose detector
	var det apiserver.Detector
	if cfg.Detector.URL != "" {
		var obs detector.Observer
		if mgr != nil {
			obs = mgr
		}
		det = detector.NewClient(cfg.Detector.URL, cfg.Detector.Timeout, obs)
		log.Info("pose detector configured", "url", cfg.Detector.URL)
	}

	// MCP over streamable HTTP
	mcpSrv := mcp.New(mcp.Local{Engine: eng, Archive: arc}, Version, log)

	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	srv = apiserver.New(apiserver.Deps{
		Engine:   eng,
		Archive:  arc,
		Detector: det,
		Metrics:  mgr,
		Gatherer: gatherer,
		MCP:      server.NewStreamableHTTPServer(mcpSrv),
		APIKey:   cfg.Auth.APIKey,
		Log:      log,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go eng.RunJanitor(janitorCtx, cfg.Sessions.SweepInterval)

	// Start server: tsnet or plain HTTP
	var listener net.Listener

	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stopJanitor()

	// Live sessions are archived as ended so their counts survive a restart.
	for _, s := range eng.Sessions() {
		if final, ok := eng.EndSession(s.SessionID); ok {
			srv.OnEvict(final)
		}
	}
	log.Info("server stopped")
}
