package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claude/repcam/internal/engine"
)

// SQLite is a single-file archive for deployments without Postgres.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the archive database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}
	// One writer at a time; the janitor and handlers share the handle.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS camera_sessions (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id            TEXT    NOT NULL,
		exercise              TEXT    NOT NULL,
		fitness_level         TEXT    NOT NULL,
		rep_count             INTEGER NOT NULL,
		partial_rep_count     INTEGER NOT NULL,
		frames                INTEGER NOT NULL,
		low_confidence_frames INTEGER NOT NULL,
		down_angle            REAL    NOT NULL,
		up_angle              REAL    NOT NULL,
		safe_zone             REAL    NOT NULL,
		debounce_ms           INTEGER NOT NULL,
		reason                TEXT    NOT NULL,
		started_at_ms         INTEGER NOT NULL,
		ended_at_ms           INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Save appends one finished session.
func (s *SQLite) Save(ctx context.Context, fs engine.FinalSummary) error {
	r := FromSummary(fs)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO camera_sessions (
			session_id, exercise, fitness_level, rep_count, partial_rep_count,
			frames, low_confidence_frames, down_angle, up_angle, safe_zone,
			debounce_ms, reason, started_at_ms, ended_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Exercise, r.FitnessLevel, r.RepCount, r.PartialRepCount,
		r.Frames, r.LowConfidenceFrames, r.DownAngle, r.UpAngle, r.SafeZone,
		r.DebounceMS, r.Reason, r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("archiving session %s: %w", r.SessionID, err)
	}
	return nil
}

// Recent returns the latest sessions, newest first.
func (s *SQLite) Recent(ctx context.Context, exercise string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, exercise, fitness_level, rep_count, partial_rep_count,
			frames, low_confidence_frames, down_angle, up_angle, safe_zone,
			debounce_ms, reason, started_at_ms, ended_at_ms
		FROM camera_sessions
		WHERE ? = '' OR exercise = ?
		ORDER BY ended_at_ms DESC, id DESC
		LIMIT ?`,
		exercise, exercise, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		var started, ended int64
		if err := rows.Scan(
			&r.SessionID, &r.Exercise, &r.FitnessLevel, &r.RepCount, &r.PartialRepCount,
			&r.Frames, &r.LowConfidenceFrames, &r.DownAngle, &r.UpAngle, &r.SafeZone,
			&r.DebounceMS, &r.Reason, &started, &ended,
		); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.EndedAt = time.UnixMilli(ended).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
