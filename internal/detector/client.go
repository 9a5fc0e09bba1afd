// Package detector talks to the external pose-estimation service that turns
// a camera image into body keypoints.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/repcam/internal/pose"
)

// ErrUnavailable wraps every failure to obtain keypoints from the detector.
var ErrUnavailable = errors.New("pose detector unavailable")

// Request is one image to analyze. Exactly one of ImageBase64 or ImageURL is set.
type Request struct {
	ImageBase64 string  `json:"image_base64,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Validate checks that the request names exactly one image source.
func (r Request) Validate() error {
	switch {
	case r.ImageBase64 == "" && r.ImageURL == "":
		return errors.New("image_base64 or image_url is required")
	case r.ImageBase64 != "" && r.ImageURL != "":
		return errors.New("only one of image_base64 or image_url may be set")
	case r.Confidence < 0 || r.Confidence > 1:
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

type response struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error"`
	Keypoints []pose.Keypoint `json:"keypoints"`
}

// Observer is notified after each detector round trip.
type Observer interface {
	ObserveDetector(err error, d time.Duration)
}

// Client calls the detector's POST /pose endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	obs        Observer
}

// NewClient creates a Client for baseURL. A zero timeout means 10 seconds.
func NewClient(baseURL string, timeout time.Duration, obs Observer) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		obs:        obs,
	}
}

// Detect returns the keypoints of the single person found in the image.
func (c *Client) Detect(ctx context.Context, req Request) ([]pose.Keypoint, error) {
	start := time.Now()
	kps, err := c.detect(ctx, req)
	if c.obs != nil {
		c.obs.ObserveDetector(err, time.Since(start))
	}
	return kps, err
}

func (c *Client) detect(ctx context.Context, req Request) ([]pose.Keypoint, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("detector: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pose", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("detector: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: /pose returned %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "detection failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	if len(out.Keypoints) == 0 {
		return nil, fmt.Errorf("%w: no person detected", ErrUnavailable)
	}
	return out.Keypoints, nil
}
