package mcp

import (
	"context"

	"github.com/claude/repcam/internal/archive"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/exercise"
)

// DataSource abstracts session state for MCP tools. Local (in-process engine)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ListExercises(ctx context.Context) ([]exercise.Info, error)
	ListSessions(ctx context.Context) ([]engine.Summary, error)
	GetSession(ctx context.Context, id string) (*engine.Summary, error)
	RecentSessions(ctx context.Context, exercise string, limit int) ([]archive.Record, error)
}

// Local serves tools straight from the running engine and its archive.
type Local struct {
	Engine  *engine.Engine
	Archive archive.Archive
}

// Compile-time check: Local satisfies DataSource.
var _ DataSource = Local{}

func (l Local) ListExercises(context.Context) ([]exercise.Info, error) {
	return exercise.Catalog(), nil
}

func (l Local) ListSessions(context.Context) ([]engine.Summary, error) {
	out := l.Engine.Sessions()
	if out == nil {
		out = []engine.Summary{}
	}
	return out, nil
}

func (l Local) GetSession(_ context.Context, id string) (*engine.Summary, error) {
	s, ok := l.Engine.GetSession(id)
	if !ok {
		return nil, engine.ErrUnknownSession
	}
	return &s, nil
}

func (l Local) RecentSessions(ctx context.Context, exercise string, limit int) ([]archive.Record, error) {
	if l.Archive == nil {
		return []archive.Record{}, nil
	}
	return l.Archive.Recent(ctx, exercise, limit)
}
