package engine

import (
	"sync"
	"time"

	"github.com/claude/repcam/internal/exercise"
	"github.com/claude/repcam/internal/hints"
)

// EndReason records why a session was torn down.
type EndReason string

const (
	EndedByClient EndReason = "ended"
	EndedIdle     EndReason = "evicted"
)

// Summary is a read-only snapshot of a live session.
type Summary struct {
	SessionID       string                `json:"session_id"`
	Exercise        exercise.Type         `json:"exercise"`
	Thresholds      exercise.Thresholds   `json:"thresholds"`
	DebounceMS      int64                 `json:"debounce_ms"`
	FitnessLevel    exercise.FitnessLevel `json:"fitness_level"`
	RepCount        int                   `json:"rep_count"`
	PartialRepCount int                   `json:"partial_rep_count"`
	CurrentPhase    Phase                 `json:"current_phase"`
	Frames          int                   `json:"frames"`
	LowConfidence   int                   `json:"low_confidence_frames"`
	CreatedAt       time.Time             `json:"created_at"`
	LastFrameAt     time.Time             `json:"last_frame_at,omitzero"`
}

// FinalSummary is what remains of a session after it ends.
type FinalSummary struct {
	Summary
	EndedAt time.Time `json:"ended_at"`
	Reason  EndReason `json:"reason"`
}

// session is one entry in the Store. Every field below mu is read and
// written only while mu is held.
type session struct {
	mu sync.Mutex

	closed     bool
	id         string
	profile    *exercise.Profile
	thresholds exercise.Thresholds
	level      exercise.FitnessLevel

	smoother *Smoother
	machine  PhaseMachine
	angle    float64 // last smoothed angle
	hasAngle bool

	createdAt   time.Time
	lastFrameAt time.Time
	touchedAt   time.Time // wall clock, drives idle eviction

	frames        int
	lowConfidence int
	lastHint      map[hints.Category]time.Time
}

func (s *session) summary() Summary {
	return Summary{
		SessionID:       s.id,
		Exercise:        s.profile.Type,
		Thresholds:      s.thresholds,
		DebounceMS:      s.thresholds.DebounceMS(),
		FitnessLevel:    s.level,
		RepCount:        s.machine.Reps,
		PartialRepCount: s.machine.Partials,
		CurrentPhase:    s.machine.Phase,
		Frames:          s.frames,
		LowConfidence:   s.lowConfidence,
		CreatedAt:       s.createdAt,
		LastFrameAt:     s.lastFrameAt,
	}
}

// close marks the session dead and returns its final counters. The caller
// holds s.mu.
func (s *session) close(reason EndReason, now time.Time) FinalSummary {
	s.closed = true
	return FinalSummary{Summary: s.summary(), EndedAt: now, Reason: reason}
}

// throttle drops hints whose category was already shown within cooldown,
// keeps at most n of the rest and stamps the ones it returns.
func (s *session) throttle(hs []hints.Hint, cooldown time.Duration, n int, at time.Time) []hints.Hint {
	out := make([]hints.Hint, 0, len(hs))
	for _, h := range hs {
		if last, ok := s.lastHint[h.Category]; ok && cooldown > 0 && at.Sub(last) < cooldown {
			continue
		}
		out = append(out, h)
	}
	out = hints.Top(out, n)
	for _, h := range out {
		s.lastHint[h.Category] = at
	}
	return out
}
