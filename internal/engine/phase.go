package engine

import (
	"time"

	"github.com/claude/repcam/internal/exercise"
)

// Phase is the position in the movement cycle.
type Phase string

const (
	PhaseUp   Phase = "UP"
	PhaseDown Phase = "DOWN"
)

// RepEvent is what a DOWN→UP transition produced.
type RepEvent int

const (
	NoRep RepEvent = iota
	FullRep
	PartialRep
)

// PhaseMachine counts repetitions from a smoothed joint angle using two
// thresholds, a safe zone at the bottom and a debounce window after each
// counted event.
type PhaseMachine struct {
	Phase          Phase
	Valley         float64
	Peak           float64
	PhaseStartedAt time.Time
	LastRepAt      time.Time // zero until the first event

	Reps     int
	Partials int
}

// NewPhaseMachine returns a machine in the UP phase.
func NewPhaseMachine(now time.Time) PhaseMachine {
	m := PhaseMachine{Phase: PhaseUp}
	m.resetTrackers(now)
	return m
}

func (m *PhaseMachine) resetTrackers(now time.Time) {
	m.Valley = 180
	m.Peak = 0
	m.PhaseStartedAt = now
}

// Step feeds one smoothed angle observed at now and reports any rep event.
//
// A cycle that turns back up without ever crossing DownAngle still counts as
// partial, never full, once it dipped below UpAngle−SafeZone and returns
// above UpAngle. The phase stays UP in that case.
func (m *PhaseMachine) Step(angle float64, th exercise.Thresholds, now time.Time) RepEvent {
	ev := NoRep
	switch m.Phase {
	case PhaseUp:
		switch {
		case angle < th.DownAngle:
			m.Phase = PhaseDown
			m.resetTrackers(now)
		case angle > th.UpAngle && m.Valley < th.UpAngle-th.SafeZone:
			ev = m.complete(th, now, false)
			m.resetTrackers(now)
		}
	case PhaseDown:
		if angle > th.UpAngle {
			ev = m.complete(th, now, true)
			m.Phase = PhaseUp
			m.resetTrackers(now)
		}
	}
	m.Valley = min(m.Valley, angle)
	m.Peak = max(m.Peak, angle)
	return ev
}

// complete records a finished cycle unless it falls inside the debounce
// window. Only a cycle that bottomed out in DOWN is classified by its valley.
func (m *PhaseMachine) complete(th exercise.Thresholds, now time.Time, bottomed bool) RepEvent {
	if !m.LastRepAt.IsZero() && now.Sub(m.LastRepAt) <= th.Debounce {
		return NoRep
	}
	m.LastRepAt = now
	if bottomed && m.Valley <= th.DownAngle+th.SafeZone {
		m.Reps++
		return FullRep
	}
	m.Partials++
	return PartialRep
}

// Progress reports how far through the current phase angle is, in [0,100].
// In UP it measures the way down toward DownAngle; in DOWN the way back up.
func (m *PhaseMachine) Progress(angle float64, th exercise.Thresholds) float64 {
	span := th.UpAngle - th.DownAngle
	if span <= 0 {
		return 0
	}
	var p float64
	if m.Phase == PhaseDown {
		p = (angle - th.DownAngle) / span * 100
	} else {
		p = (th.UpAngle - angle) / span * 100
	}
	return max(0, min(100, p))
}
