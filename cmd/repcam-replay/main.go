package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/claude/repcam/internal/config"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/exercise"
	"github.com/claude/repcam/internal/replay"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	path := flag.String("file", "", "JSON-lines recording of {\"t_ms\":..,\"keypoints\":[..]} frames")
	ex := flag.String("exercise", "squat", "exercise type")
	down := flag.Float64("down", 0, "override down angle")
	up := flag.Float64("up", 0, "override up angle")
	safe := flag.Float64("safe", 0, "override safe zone")
	debounce := flag.Int64("debounce-ms", 0, "override debounce in milliseconds")
	level := flag.String("level", "", "fitness level: beginner, intermediate or advanced")
	configPath := flag.String("config", "", "optional server config whose engine settings are used locally")
	serverURL := flag.String("server", "", "stream to a repcam server instead of replaying in-process")
	apiKey := flag.String("api-key", os.Getenv("REPCAM_AUTH_API_KEY"), "API key for -server")
	sessionID := flag.String("session", "", "session id for -server (default: random)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcam-replay", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *path == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcam-replay -file <recording.jsonl> [-exercise squat] [-server URL]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Only flags given on the command line override the profile defaults.
	cal := &exercise.Calibration{FitnessLevel: exercise.FitnessLevel(*level)}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "down":
			cal.DownAngle = down
		case "up":
			cal.UpAngle = up
		case "safe":
			cal.SafeZone = safe
		case "debounce-ms":
			cal.DebounceMS = debounce
		}
	})

	file, err := os.Open(*path)
	if err != nil {
		log.Error("failed to open recording", "error", err)
		os.Exit(1)
	}
	frames, err := replay.Read(file)
	file.Close()
	if err != nil {
		log.Error("failed to parse recording", "path", *path, "error", err)
		os.Exit(1)
	}
	log.Info("recording loaded", "frames", len(frames))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res replay.Result
	if *serverURL != "" {
		id := *sessionID
		if id == "" {
			id = uuid.NewString()
		}
		log.Info("streaming to server", "server", *serverURL, "session_id", id)
		res, err = replay.NewClient(*serverURL, *apiKey).Remote(ctx, id, exercise.Type(*ex), cal, frames)
	} else {
		cfg := engine.DefaultConfig()
		if *configPath != "" {
			c, err := config.Load(*configPath)
			if err != nil {
				log.Error("failed to load config", "error", err)
				os.Exit(1)
			}
			cfg = c.EngineOptions()
		}
		res, err = replay.Local(cfg, exercise.Type(*ex), cal, frames)
	}
	if err != nil {
		log.Error("replay failed", "error", err)
		os.Exit(1)
	}

	log.Info("replay complete",
		"reps", res.Final.RepCount,
		"partial_reps", res.Final.PartialRepCount,
		"low_confidence_frames", res.Final.LowConfidence,
		"rejected_frames", res.Rejected,
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Error("failed to write result", "error", err)
		os.Exit(1)
	}
}
