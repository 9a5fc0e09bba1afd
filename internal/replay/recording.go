// Package replay feeds recorded keypoint streams back through the rep
// counter, either in-process or against a running server.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/exercise"
	"github.com/claude/repcam/internal/pose"
)

// Frame is one line of a recording.
type Frame struct {
	TMS       int64           `json:"t_ms"`
	Keypoints []pose.Keypoint `json:"keypoints"`
}

// At returns the frame timestamp.
func (f Frame) At() time.Time { return time.UnixMilli(f.TMS) }

// Read parses a JSON-lines recording. Blank lines and lines starting with #
// are skipped.
func Read(r io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)

	var frames []Frame
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var f Frame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(frames) > 0 && f.TMS < frames[len(frames)-1].TMS {
			return nil, fmt.Errorf("line %d: timestamp %d goes backwards", line, f.TMS)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	return frames, nil
}

// Result is the outcome of one replay.
type Result struct {
	Final     engine.FinalSummary `json:"final"`
	Reps      []int64             `json:"rep_timestamps_ms"`
	Rejected  int                 `json:"rejected_frames"`
	HintCount map[string]int      `json:"hint_counts"`
}

// Local runs frames through a fresh in-process engine.
func Local(cfg engine.Config, t exercise.Type, cal *exercise.Calibration, frames []Frame) (Result, error) {
	const id = "replay"
	eng := engine.New(cfg)
	if _, err := eng.CreateSession(id, t, cal); err != nil {
		return Result{}, err
	}

	res := Result{HintCount: map[string]int{}}
	for _, f := range frames {
		fr, err := eng.SubmitFrame(id, f.Keypoints, f.At())
		if err != nil {
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

	final, ok := eng.EndSession(id)
	if !ok {
		return Result{}, engine.ErrUnknownSession
	}
	res.Final = final
	return res, nil
}
