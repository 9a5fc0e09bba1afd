package detector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/repcam/internal/pose"
)

type countingObserver struct {
	calls  int
	failed int
}

func (o *countingObserver) ObserveDetector(err error, _ time.Duration) {
	o.calls++
	if err != nil {
		o.failed++
	}
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestDetectSuccess verifies the request body and keypoint parsing.
func TestDetectSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pose" {
			t.Errorf("request = %s %s, want POST /pose", r.Method, r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ImageURL != "https://cam.local/frame.jpg" || req.Confidence != 0.3 {
			t.Errorf("request body = %+v", req)
		}
		writeTestJSON(t, w, map[string]any{
			"success": true,
			"keypoints": []pose.Keypoint{
				{ID: pose.LeftKnee, X: 0.4, Y: 0.7, Confidence: 0.9},
			},
		})
	}))
	defer ts.Close()

	obs := &countingObserver{}
	c := NewClient(ts.URL+"/", time.Second, obs)
	kps, err := c.Detect(context.Background(), Request{ImageURL: "https://cam.local/frame.jpg", Confidence: 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kps) != 1 || kps[0].ID != pose.LeftKnee {
		t.Errorf("keypoints = %+v", kps)
	}
	if obs.calls != 1 || obs.failed != 0 {
		t.Errorf("observer calls=%d failed=%d", obs.calls, obs.failed)
	}
}

// TestDetectFailures verifies every failure mode wraps ErrUnavailable.
func TestDetectFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}},
		{"unsuccessful", func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, map[string]any{"success": false, "error": "bad image"})
		}},
		{"no person", func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, map[string]any{"success": true, "keypoints": []any{}})
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		ts := httptest.NewServer(tt.handler)
		obs := &countingObserver{}
		_, err := NewClient(ts.URL, time.Second, obs).Detect(context.Background(), Request{ImageBase64: "aGk="})
		ts.Close()
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("%s: err = %v, want ErrUnavailable", tt.name, err)
		}
		if obs.failed != 1 {
			t.Errorf("%s: observer failed = %d, want 1", tt.name, obs.failed)
		}
	}
}

// TestDetectUnreachable verifies a closed server reports ErrUnavailable.
func TestDetectUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, time.Second, nil).Detect(context.Background(), Request{ImageBase64: "aGk="})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

// TestRequestValidate verifies image source validation.
func TestRequestValidate(t *testing.T) {
	if err := (Request{}).Validate(); err == nil {
		t.Error("empty request accepted")
	}
	if err := (Request{ImageBase64: "a", ImageURL: "b"}).Validate(); err == nil {
		t.Error("request with both sources accepted")
	}
	if err := (Request{ImageURL: "b", Confidence: 2}).Validate(); err == nil {
		t.Error("confidence 2 accepted")
	}
	if err := (Request{ImageURL: "b"}).Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}
