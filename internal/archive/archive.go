// Package archive keeps a history of finished camera sessions. The engine
// forgets a session when it ends; the archive is where its final counters go.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repcam/internal/engine"
)

// DefaultRecentLimit caps Recent when the caller passes no limit.
const DefaultRecentLimit = 20

// Record is one archived session.
type Record struct {
	SessionID           string    `json:"session_id"`
	Exercise            string    `json:"exercise"`
	FitnessLevel        string    `json:"fitness_level"`
	RepCount            int       `json:"rep_count"`
	PartialRepCount     int       `json:"partial_rep_count"`
	Frames              int       `json:"frames"`
	LowConfidenceFrames int       `json:"low_confidence_frames"`
	DownAngle           float64   `json:"down_angle"`
	UpAngle             float64   `json:"up_angle"`
	SafeZone            float64   `json:"safe_zone"`
	DebounceMS          int64     `json:"debounce_ms"`
	Reason              string    `json:"reason"`
	StartedAt           time.Time `json:"started_at"`
	EndedAt             time.Time `json:"ended_at"`
}

// FromSummary flattens a final summary into a Record.
func FromSummary(fs engine.FinalSummary) Record {
	return Record{
		SessionID:           fs.SessionID,
		Exercise:            string(fs.Exercise),
		FitnessLevel:        string(fs.FitnessLevel),
		RepCount:            fs.RepCount,
		PartialRepCount:     fs.PartialRepCount,
		Frames:              fs.Frames,
		LowConfidenceFrames: fs.LowConfidence,
		DownAngle:           fs.Thresholds.DownAngle,
		UpAngle:             fs.Thresholds.UpAngle,
		SafeZone:            fs.Thresholds.SafeZone,
		DebounceMS:          fs.DebounceMS,
		Reason:              string(fs.Reason),
		StartedAt:           fs.CreatedAt,
		EndedAt:             fs.EndedAt,
	}
}

// Archive stores final session summaries.
type Archive interface {
	Save(ctx context.Context, fs engine.FinalSummary) error
	// Recent returns the newest records first, optionally filtered by exercise.
	Recent(ctx context.Context, exercise string, limit int) ([]Record, error)
	Close() error
}

// Options selects and configures a driver.
type Options struct {
	Driver         string // none, sqlite or postgres
	SQLitePath     string
	DSN            string
	MigrationsPath string
}

// Open returns the archive named by opts.Driver.
func Open(ctx context.Context, opts Options) (Archive, error) {
	switch opts.Driver {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		return OpenSQLite(opts.SQLitePath)
	case "postgres":
		if err := RunMigrations(opts.DSN, opts.MigrationsPath); err != nil {
			return nil, err
		}
		return OpenPostgres(ctx, opts.DSN)
	}
	return nil, fmt.Errorf("unknown archive driver %q", opts.Driver)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Save(context.Context, engine.FinalSummary) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]Record, error) { return []Record{}, nil }

func (Nop) Close() error { return nil }

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return min(limit, 500)
}
