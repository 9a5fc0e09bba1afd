package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/claude/repcam/internal/engine"
)

// Postgres archives sessions in a PostgreSQL database.
type Postgres struct {
	Pool *pgxpool.Pool
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

// Collector exposes pool statistics to Prometheus.
func (p *Postgres) Collector() prometheus.Collector {
	return pgxpoolprometheus.NewCollector(p.Pool, map[string]string{"db_name": "repcam"})
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Save appends one finished session.
func (p *Postgres) Save(ctx context.Context, fs engine.FinalSummary) error {
	r := FromSummary(fs)
	_, err := p.Pool.Exec(ctx,
		`INSERT INTO camera_sessions (
			session_id, exercise, fitness_level, rep_count, partial_rep_count,
			frames, low_confidence_frames, down_angle, up_angle, safe_zone,
			debounce_ms, reason, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.SessionID, r.Exercise, r.FitnessLevel, r.RepCount, r.PartialRepCount,
		r.Frames, r.LowConfidenceFrames, r.DownAngle, r.UpAngle, r.SafeZone,
		r.DebounceMS, r.Reason, r.StartedAt, r.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("archiving session %s: %w", r.SessionID, err)
	}
	return nil
}

// Recent returns the latest sessions, newest first.
func (p *Postgres) Recent(ctx context.Context, exercise string, limit int) ([]Record, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT session_id, exercise, fitness_level, rep_count, partial_rep_count,
			frames, low_confidence_frames, down_angle, up_angle, safe_zone,
			debounce_ms, reason, started_at, ended_at
		FROM camera_sessions
		WHERE $1 = '' OR exercise = $1
		ORDER BY ended_at DESC, id DESC
		LIMIT $2`,
		exercise, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(
			&r.SessionID, &r.Exercise, &r.FitnessLevel, &r.RepCount, &r.PartialRepCount,
			&r.Frames, &r.LowConfidenceFrames, &r.DownAngle, &r.UpAngle, &r.SafeZone,
			&r.DebounceMS, &r.Reason, &r.StartedAt, &r.EndedAt,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning archive rows: %w", err)
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}
