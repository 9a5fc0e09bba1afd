package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/repcam/internal/archive"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/exercise"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths, query params and API key.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "k" {
			t.Errorf("X-API-Key = %q, want k", got)
		}
		h, ok := handlers[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"session not found"}`))
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestHTTPListExercises verifies the catalog response is decoded.
func TestHTTPListExercises(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/exercises": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, exercise.Catalog())
		},
	})
	defer ts.Close()

	cat, err := NewHTTPClient(ts.URL+"/", "k").ListExercises(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cat) != 3 || cat[2].Type != exercise.Squat || cat[2].Defaults.UpAngle != 160 {
		t.Errorf("catalog = %+v", cat)
	}
}

// TestHTTPGetSession verifies the session path and the not-found mapping.
func TestHTTPGetSession(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/cam 1": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, engine.Summary{
				SessionID:    "cam 1",
				Exercise:     exercise.Squat,
				RepCount:     4,
				CurrentPhase: engine.PhaseDown,
				CreatedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "k")
	s, err := client.GetSession(context.Background(), "cam 1")
	if err != nil {
		t.Fatal(err)
	}
	if s.RepCount != 4 || s.CurrentPhase != engine.PhaseDown {
		t.Errorf("summary = %+v", s)
	}

	_, err = client.GetSession(context.Background(), "missing")
	if !errors.Is(err, engine.ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}
}

// TestHTTPRecentSessions verifies the history query params.
func TestHTTPRecentSessions(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/history": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("exercise"); got != "pushup" {
				t.Errorf("exercise=%q, want pushup", got)
			}
			if got := r.URL.Query().Get("limit"); got != "3" {
				t.Errorf("limit=%q, want 3", got)
			}
			writeTestJSON(t, w, []archive.Record{{SessionID: "p", Exercise: "pushup", RepCount: 12}})
		},
	})
	defer ts.Close()

	recs, err := NewHTTPClient(ts.URL, "k").RecentSessions(context.Background(), "pushup", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].RepCount != 12 {
		t.Errorf("records = %+v", recs)
	}
}

// TestHTTPServerError verifies non-200 responses surface as errors.
func TestHTTPServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL, "k").ListSessions(context.Background())
	if err == nil {
		t.Fatal("expected error for 500")
	}
	if errors.Is(err, engine.ErrUnknownSession) {
		t.Error("500 mapped to ErrUnknownSession")
	}
}
