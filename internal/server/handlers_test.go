package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/claude/repcam/internal/archive"
	"github.com/claude/repcam/internal/detector"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/metrics"
	"github.com/claude/repcam/internal/pose"
)

type fakeDetector struct {
	kps []pose.Keypoint
	err error
}

func (f *fakeDetector) Detect(context.Context, detector.Request) ([]pose.Keypoint, error) {
	return f.kps, f.err
}

// squatFrame places hip, knee and ankle so the knee angle is deg degrees.
func squatFrame(deg float64) []pose.Keypoint {
	rad := deg * math.Pi / 180
	return []pose.Keypoint{
		{ID: pose.LeftHip, X: 0.5 - 0.2*math.Sin(rad), Y: 0.6 + 0.2*math.Cos(rad), Confidence: 0.9},
		{ID: pose.LeftKnee, X: 0.5, Y: 0.6, Confidence: 0.9},
		{ID: pose.LeftAnkle, X: 0.5, Y: 0.85, Confidence: 0.9},
	}
}

func newTestServer(t *testing.T, det Detector) (*Server, *engine.Engine) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.SmoothingWindow = 1
	eng := engine.New(cfg)

	arc, err := archive.OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { arc.Close() })

	reg := prometheus.NewRegistry()
	srv := New(Deps{
		Engine:   eng,
		Archive:  arc,
		Detector: det,
		Metrics:  metrics.NewManager("repcam", "test", reg),
		Gatherer: reg,
		APIKey:   "k",
		Log:      slog.Default(),
	})
	return srv, eng
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	info := decode[UserInfo](t, rec)
	if info.Login != "local" || info.DisplayName != "Local Dev User" {
		t.Errorf("info = %+v", info)
	}
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// Tailscale user identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	info := decode[UserInfo](t, rec)
	if info.Login != "alice@example.com" {
		t.Errorf("login = %q, want %q", info.Login, "alice@example.com")
	}
	if info.DisplayName != "Alice" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Alice")
	}
}

// TestSessionLifecycle drives a squat rep over HTTP, ends the session and
// finds it in the history.
func TestSessionLifecycle(t *testing.T) {
	srv, eng := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{
		"session_id":  "s1",
		"exercise":    "squat",
		"calibration": map[string]any{"down_angle": 100},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	created := decode[engine.Summary](t, rec)
	if created.Thresholds.DownAngle != 100 || created.Thresholds.UpAngle != 160 {
		t.Errorf("thresholds = %+v", created.Thresholds)
	}

	var last engine.FrameResult
	for i, deg := range []float64{170, 150, 120, 95, 90, 110, 140, 165} {
		rec := do(t, srv, http.MethodPost, "/api/v1/sessions/s1/frames", map[string]any{
			"keypoints":    squatFrame(deg),
			"timestamp_ms": 1000 + i*100,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("frame %d status = %d: %s", i, rec.Code, rec.Body)
		}
		last = decode[engine.FrameResult](t, rec)
	}
	if last.RepCount != 1 || last.PartialRepCount != 0 || !last.IsValidRep || last.CurrentPhase != engine.PhaseUp {
		t.Errorf("last frame = %+v", last)
	}

	rec = do(t, srv, http.MethodDelete, "/api/v1/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d", rec.Code)
	}
	final := decode[engine.FinalSummary](t, rec)
	if final.RepCount != 1 || final.Frames != 8 || final.Reason != engine.EndedByClient {
		t.Errorf("final = %+v", final)
	}
	if eng.Len() != 0 {
		t.Errorf("engine still has %d sessions", eng.Len())
	}

	if rec := do(t, srv, http.MethodGet, "/api/v1/sessions/s1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after end = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/v1/sessions/s1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second end = %d, want 404", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/history?exercise=squat", nil)
	recs := decode[[]archive.Record](t, rec)
	if len(recs) != 1 || recs[0].SessionID != "s1" || recs[0].RepCount != 1 {
		t.Errorf("history = %+v", recs)
	}
}

// TestCreateOnFirstFrame verifies a frame carrying an exercise creates the
// session and a generated id is assigned when none is supplied.
func TestCreateOnFirstFrame(t *testing.T) {
	srv, eng := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/sessions/cam-7/frames", map[string]any{
		"exercise":  "squat",
		"keypoints": squatFrame(170),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	res := decode[engine.FrameResult](t, rec)
	if res.SessionID != "cam-7" || res.Exercise != "squat" || res.Hints == nil || res.Warnings == nil {
		t.Errorf("result = %+v", res)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{"exercise": "pushup"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if s := decode[engine.Summary](t, rec); len(s.SessionID) != 36 {
		t.Errorf("generated id = %q", s.SessionID)
	}
	if eng.Len() != 2 {
		t.Errorf("sessions = %d, want 2", eng.Len())
	}

	list := decode[[]engine.Summary](t, do(t, srv, http.MethodGet, "/api/v1/sessions", nil))
	if len(list) != 2 {
		t.Errorf("list = %+v", list)
	}
}

// TestErrorMapping verifies engine failures map onto HTTP statuses.
func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	do(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{"session_id": "dup", "exercise": "situp"})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate", http.MethodPost, "/api/v1/sessions", map[string]any{"session_id": "dup", "exercise": "situp"}, 409},
		{"unknown exercise", http.MethodPost, "/api/v1/sessions", map[string]any{"exercise": "lunge"}, 400},
		{"inverted thresholds", http.MethodPost, "/api/v1/sessions", map[string]any{"exercise": "squat", "calibration": map[string]any{"down_angle": 170}}, 400},
		{"unknown session", http.MethodPost, "/api/v1/sessions/ghost/frames", map[string]any{"keypoints": squatFrame(170)}, 404},
		{"empty keypoints", http.MethodPost, "/api/v1/sessions/dup/frames", map[string]any{"keypoints": []any{}}, 400},
		{"bad limit", http.MethodGet, "/api/v1/history?limit=-3", nil, 400},
		{"bad history exercise", http.MethodGet, "/api/v1/history?exercise=lunge", nil, 400},
		{"no detector", http.MethodPost, "/api/v1/sessions/dup/analyze", map[string]any{"image_url": "http://cam/1.jpg"}, 503},
	}
	for _, tc := range cases {
		rec := do(t, srv, tc.method, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d (%s)", tc.name, rec.Code, tc.want, rec.Body)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Errorf("%s: body %q has no error field", tc.name, rec.Body)
		}
	}
}

// TestAnalyze verifies detector keypoints flow into the pipeline and detector
// failures surface as 503.
func TestAnalyze(t *testing.T) {
	det := &fakeDetector{kps: squatFrame(170)}
	srv, _ := newTestServer(t, det)

	rec := do(t, srv, http.MethodPost, "/api/v1/sessions/a1/analyze", map[string]any{
		"exercise":     "squat",
		"image_base64": "aGVsbG8=",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	res := decode[engine.FrameResult](t, rec)
	if len(res.Keypoints) != 3 || math.Abs(res.Angles.Raw-170) > 0.01 {
		t.Errorf("result = %+v", res)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/sessions/a1/analyze", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no image status = %d, want 400", rec.Code)
	}

	det.err = fmt.Errorf("%w: connection refused", detector.ErrUnavailable)
	rec = do(t, srv, http.MethodPost, "/api/v1/sessions/a1/analyze", map[string]any{"image_url": "http://cam/2.jpg"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("detector down status = %d, want 503", rec.Code)
	}
}

// TestAuthAndPublicRoutes verifies the API requires a key while health and
// metrics stay public.
func TestAuthAndPublicRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exercises", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}

	do(t, srv, http.MethodGet, "/api/v1/exercises", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "repcam_test_request_duration_seconds") {
		t.Errorf("metrics status=%d body lacks request histogram", rec.Code)
	}
}

// TestOnEvictArchives verifies idle evictions reach the archive.
func TestOnEvictArchives(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	if _, err := eng.CreateSession("idle", "pushup", nil); err != nil {
		t.Fatal(err)
	}
	final, _ := eng.EndSession("idle")
	final.Reason = engine.EndedIdle
	srv.OnEvict(final)

	recs := decode[[]archive.Record](t, do(t, srv, http.MethodGet, "/api/v1/history", nil))
	if len(recs) != 1 || recs[0].Reason != "evicted" {
		t.Errorf("history = %+v", recs)
	}
}

// TestFrameBodyLimit verifies oversized frame and create bodies are rejected
// before they reach the engine.
func TestFrameBodyLimit(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	padding := strings.Repeat("x", maxFrameBody)

	rec := do(t, srv, http.MethodPost, "/api/v1/sessions/big/frames", map[string]any{
		"exercise":  "squat",
		"keypoints": squatFrame(170),
		"padding":   padding,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("frame status = %d, want 400", rec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{
		"exercise": "squat",
		"padding":  padding,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create status = %d, want 400", rec.Code)
	}
	if eng.Len() != 0 {
		t.Errorf("engine holds %d sessions after oversized requests", eng.Len())
	}
}
