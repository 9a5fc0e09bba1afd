package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/exercise"
	"github.com/claude/repcam/internal/pose"
)

// Client streams a recording to a repcam server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the repcam server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: time.Second,
	}
}

type frameBody struct {
	Exercise    exercise.Type         `json:"exercise,omitempty"`
	Calibration *exercise.Calibration `json:"calibration,omitempty"`
	Keypoints   []pose.Keypoint       `json:"keypoints"`
	TimestampMS int64                 `json:"timestamp_ms"`
}

// SendFrame posts one frame. The exercise and calibration only matter on the
// first frame of a session. Retries up to 3 times with exponential backoff on
// transport errors and 5xx responses.
func (c *Client) SendFrame(ctx context.Context, id string, t exercise.Type, cal *exercise.Calibration, f Frame) (engine.FrameResult, error) {
	var res engine.FrameResult
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/frames", frameBody{
		Exercise:    t,
		Calibration: cal,
		Keypoints:   f.Keypoints,
		TimestampMS: f.TMS,
	}, &res)
	return res, err
}

// EndSession ends the session on the server and returns its final counters.
func (c *Client) EndSession(ctx context.Context, id string) (engine.FinalSummary, error) {
	var final engine.FinalSummary
	err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil, &final)
	return final, err
}

// Remote streams frames to the server under id and ends the session.
func (c *Client) Remote(ctx context.Context, id string, t exercise.Type, cal *exercise.Calibration, frames []Frame) (Result, error) {
	res := Result{HintCount: map[string]int{}}
	for _, f := range frames {
		fr, err := c.SendFrame(ctx, id, t, cal, f)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, err
			}
			res.Rejected++
			continue
		}
		if fr.IsValidRep {
			res.Reps = append(res.Reps, f.TMS)
		}
		for _, h := range fr.Hints {
			res.HintCount[string(h.Category)]++
		}
	}
	final, err := c.EndSession(ctx, id)
	if err != nil {
		return Result{}, err
	}
	res.Final = final
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decoding %s response: %w", path, err)
			}
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, respBody)
		default:
			return fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, respBody)
		}
	}

	return fmt.Errorf("after 3 attempts: %w", lastErr)
}
