package engine

import (
	"math"
	"testing"
	"time"

	"github.com/claude/repcam/internal/exercise"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func testThresholds() exercise.Thresholds {
	return exercise.Thresholds{DownAngle: 100, UpAngle: 160, SafeZone: 15, Debounce: 500 * time.Millisecond}
}

// TestSmootherRawUntilTwoSamples verifies a single sample passes through unchanged.
func TestSmootherRawUntilTwoSamples(t *testing.T) {
	s := NewSmoother(10, 0.3)
	if got := s.Smooth(120); got != 120 {
		t.Errorf("first sample = %v, want 120", got)
	}
	if got := s.Smooth(200); math.Abs(got-144) > 1e-9 {
		t.Errorf("second sample = %v, want 144", got)
	}
}

// TestSmootherRingWraps verifies the oldest samples are dropped at capacity.
func TestSmootherRingWraps(t *testing.T) {
	s := NewSmoother(2, 0.3)
	s.Smooth(10)
	s.Smooth(20)
	got := s.Smooth(30)
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	// Only 20 and 30 remain: 0.3*30 + 0.7*20.
	if math.Abs(got-23) > 1e-9 {
		t.Errorf("smoothed = %v, want 23", got)
	}
}

// TestSmootherWindowOne verifies a capacity of one disables smoothing.
func TestSmootherWindowOne(t *testing.T) {
	s := NewSmoother(0, 0.3)
	for _, x := range []float64{170, 95, 165} {
		if got := s.Smooth(x); got != x {
			t.Errorf("Smooth(%v) = %v", x, got)
		}
	}
}

// TestPhaseScenario walks a full squat through the state machine.
func TestPhaseScenario(t *testing.T) {
	th := testThresholds()
	m := NewPhaseMachine(at(0))
	angles := []float64{170, 150, 120, 95, 90, 110, 140, 165}

	for i, a := range angles {
		ev := m.Step(a, th, at(i*100))
		switch i {
		case 2:
			if m.Phase != PhaseUp {
				t.Errorf("t=%d phase = %s, want UP", i*100, m.Phase)
			}
		case 3:
			if m.Phase != PhaseDown {
				t.Errorf("t=300 phase = %s, want DOWN", m.Phase)
			}
			if !m.PhaseStartedAt.Equal(at(300)) {
				t.Errorf("phase started at %v, want t=300", m.PhaseStartedAt)
			}
		case 4:
			if m.Valley != 90 {
				t.Errorf("t=400 valley = %v, want 90", m.Valley)
			}
		case len(angles) - 1:
			if ev != FullRep {
				t.Errorf("last frame event = %v, want FullRep", ev)
			}
		default:
			if ev != NoRep {
				t.Errorf("t=%d unexpected event %v", i*100, ev)
			}
		}
	}
	if m.Reps != 1 || m.Partials != 0 {
		t.Errorf("reps=%d partials=%d, want 1/0", m.Reps, m.Partials)
	}
	if m.Phase != PhaseUp {
		t.Errorf("final phase = %s, want UP", m.Phase)
	}
}

// TestPhaseClassification verifies full and partial reps around down+safe_zone
// with thresholds 100/160/15.
func TestPhaseClassification(t *testing.T) {
	tests := []struct {
		bottom float64
		want   RepEvent
	}{
		{95, FullRep},
		{110, PartialRep}, // inside the safe zone but never crossed down_angle
		{130, PartialRep},
		{150, NoRep}, // never dipped below up-safe_zone
	}
	for _, tt := range tests {
		th := testThresholds()
		m := NewPhaseMachine(at(0))
		m.Step(170, th, at(0))
		m.Step(tt.bottom, th, at(100))
		if ev := m.Step(170, th, at(1000)); ev != tt.want {
			t.Errorf("bottom %v: event = %v, want %v", tt.bottom, ev, tt.want)
		}
		if m.Phase != PhaseUp {
			t.Errorf("bottom %v: phase = %s, want UP", tt.bottom, m.Phase)
		}
	}
}

// TestPhaseShallowCycleStaysUp verifies a partial that never crosses
// down_angle does not enter DOWN and resets the trackers.
func TestPhaseShallowCycleStaysUp(t *testing.T) {
	th := testThresholds()
	m := NewPhaseMachine(at(0))
	m.Step(170, th, at(0))
	m.Step(130, th, at(100))
	if m.Phase != PhaseUp {
		t.Fatalf("130 should not cross down_angle 100")
	}
	if m.Valley != 130 {
		t.Errorf("valley = %v, want 130", m.Valley)
	}
	m.Step(165, th, at(900))
	if m.Partials != 1 || m.Reps != 0 {
		t.Errorf("reps=%d partials=%d, want 0/1", m.Reps, m.Partials)
	}
	if m.Valley != 165 {
		t.Errorf("valley after reset = %v, want 165", m.Valley)
	}
}

// TestPhaseShallowCycleNeverFull verifies a dip inside down+safe_zone that
// never crosses down_angle is a partial, not a full rep.
func TestPhaseShallowCycleNeverFull(t *testing.T) {
	th := testThresholds()
	m := NewPhaseMachine(at(0))
	m.Step(170, th, at(0))
	m.Step(110, th, at(100))
	if ev := m.Step(170, th, at(1000)); ev != PartialRep {
		t.Errorf("event = %v, want PartialRep", ev)
	}
	if m.Reps != 0 || m.Partials != 1 || m.Phase != PhaseUp {
		t.Errorf("reps=%d partials=%d phase=%s, want 0/1/UP", m.Reps, m.Partials, m.Phase)
	}
}

// TestPhaseDebounce verifies a second DOWN→UP inside the window fires nothing
// but still returns the phase to UP.
func TestPhaseDebounce(t *testing.T) {
	th := testThresholds()
	m := NewPhaseMachine(at(0))
	m.Step(90, th, at(0))
	if ev := m.Step(170, th, at(1000)); ev != FullRep {
		t.Fatalf("first rep event = %v", ev)
	}

	m.Step(90, th, at(1100))
	if ev := m.Step(170, th, at(1400)); ev != NoRep {
		t.Errorf("event inside debounce = %v, want NoRep", ev)
	}
	if m.Phase != PhaseUp {
		t.Errorf("phase = %s, want UP after debounced crossing", m.Phase)
	}
	if m.Reps != 1 {
		t.Errorf("reps = %d, want 1", m.Reps)
	}

	m.Step(90, th, at(1600))
	if ev := m.Step(170, th, at(1700)); ev != FullRep {
		t.Errorf("event after window = %v, want FullRep", ev)
	}
	if m.Reps != 2 {
		t.Errorf("reps = %d, want 2", m.Reps)
	}
}

// TestPhaseMonotonic verifies counters never decrease over a noisy signal.
func TestPhaseMonotonic(t *testing.T) {
	th := testThresholds()
	th.Debounce = 0
	m := NewPhaseMachine(at(0))
	prevReps, prevPartials := 0, 0
	for i := range 500 {
		a := 135 + 50*math.Sin(float64(i)*0.37) + 10*math.Cos(float64(i)*1.9)
		m.Step(a, th, at(i*33))
		if m.Reps < prevReps || m.Partials < prevPartials {
			t.Fatalf("frame %d: counters went backwards", i)
		}
		if m.Valley > a {
			t.Fatalf("frame %d: valley %v above observed angle %v", i, m.Valley, a)
		}
		prevReps, prevPartials = m.Reps, m.Partials
	}
	if m.Reps+m.Partials == 0 {
		t.Error("no reps counted over an oscillating signal")
	}
}

// TestPhaseProgress verifies progress interpolation and clamping.
func TestPhaseProgress(t *testing.T) {
	th := testThresholds()
	m := NewPhaseMachine(at(0))
	if got := m.Progress(130, th); got != 50 {
		t.Errorf("UP progress at 130 = %v, want 50", got)
	}
	if got := m.Progress(175, th); got != 0 {
		t.Errorf("UP progress at 175 = %v, want 0", got)
	}
	m.Step(90, th, at(0))
	if got := m.Progress(145, th); got != 75 {
		t.Errorf("DOWN progress at 145 = %v, want 75", got)
	}
	if got := m.Progress(80, th); got != 0 {
		t.Errorf("DOWN progress at 80 = %v, want 0", got)
	}
}
