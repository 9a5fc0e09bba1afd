// Package exercise holds the static table of supported exercises: which joint
// angle each one tracks, its default thresholds and its form rules.
package exercise

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/claude/repcam/internal/hints"
	"github.com/claude/repcam/internal/pose"
)

var (
	// ErrUnknownExercise is returned for an exercise type with no profile.
	ErrUnknownExercise = errors.New("unknown exercise type")
	// ErrInvalidCalibration is returned when merged thresholds are unusable.
	ErrInvalidCalibration = errors.New("invalid calibration")
)

// Type identifies an exercise.
type Type string

const (
	Squat  Type = "squat"
	Pushup Type = "pushup"
	Situp  Type = "situp"
)

// Thresholds drive the phase state machine for one session.
type Thresholds struct {
	DownAngle float64       `json:"down_angle"`
	UpAngle   float64       `json:"up_angle"`
	SafeZone  float64       `json:"safe_zone"`
	Debounce  time.Duration `json:"-"`
}

// DebounceMS is the debounce interval in milliseconds, for JSON payloads.
func (t Thresholds) DebounceMS() int64 {
	return t.Debounce.Milliseconds()
}

// Validate rejects thresholds the state machine cannot work with.
func (t Thresholds) Validate() error {
	switch {
	case t.DownAngle <= 0 || t.DownAngle >= 180:
		return fmt.Errorf("%w: down_angle %v must be within (0,180)", ErrInvalidCalibration, t.DownAngle)
	case t.UpAngle <= t.DownAngle || t.UpAngle > 180:
		return fmt.Errorf("%w: up_angle %v must be within (down_angle,180]", ErrInvalidCalibration, t.UpAngle)
	case t.SafeZone < 0:
		return fmt.Errorf("%w: safe_zone %v must not be negative", ErrInvalidCalibration, t.SafeZone)
	case t.Debounce < 0:
		return fmt.Errorf("%w: debounce %v must not be negative", ErrInvalidCalibration, t.Debounce)
	}
	return nil
}

// Joints is the keypoint triple whose middle joint angle is tracked.
type Joints [3]pose.KeypointID

// Vertex returns the middle joint.
func (j Joints) Vertex() pose.KeypointID { return j[1] }

// Mirror returns the same triple on the other side of the body.
func (j Joints) Mirror() Joints {
	return Joints{j[0].Mirror(), j[1].Mirror(), j[2].Mirror()}
}

// Profile describes one exercise. Profiles are shared and never modified.
type Profile struct {
	Type     Type
	Name     string
	Joints   Joints
	Defaults Thresholds
	Rules    []hints.Rule
}

// Resolve merges a calibration over the profile defaults and validates the result.
func (p *Profile) Resolve(c *Calibration) (Thresholds, error) {
	t := p.Defaults
	if c != nil {
		if c.DownAngle != nil {
			t.DownAngle = *c.DownAngle
		}
		if c.UpAngle != nil {
			t.UpAngle = *c.UpAngle
		}
		if c.SafeZone != nil {
			t.SafeZone = *c.SafeZone
		}
		if c.DebounceMS != nil {
			t.Debounce = time.Duration(*c.DebounceMS) * time.Millisecond
		}
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// SelectSide picks whichever side of the body is detected more confidently.
// Ties keep the profile's own side.
func (p *Profile) SelectSide(f *pose.Frame) Joints {
	mirrored := p.Joints.Mirror()
	if f.MinConfidence(mirrored[:]...) > f.MinConfidence(p.Joints[:]...) {
		return mirrored
	}
	return p.Joints
}

var registry = map[Type]*Profile{
	Squat: {
		Type:   Squat,
		Name:   "Squat",
		Joints: Joints{pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
		Defaults: Thresholds{
			DownAngle: 90,
			UpAngle:   160,
			SafeZone:  15,
			Debounce:  500 * time.Millisecond,
		},
		Rules: hints.SquatRules(),
	},
	Pushup: {
		Type:   Pushup,
		Name:   "Push-up",
		Joints: Joints{pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist},
		Defaults: Thresholds{
			DownAngle: 90,
			UpAngle:   160,
			SafeZone:  15,
			Debounce:  500 * time.Millisecond,
		},
		Rules: hints.PushupRules(),
	},
	Situp: {
		Type:   Situp,
		Name:   "Sit-up",
		Joints: Joints{pose.LeftShoulder, pose.LeftHip, pose.LeftKnee},
		Defaults: Thresholds{
			DownAngle: 70,
			UpAngle:   120,
			SafeZone:  15,
			Debounce:  700 * time.Millisecond,
		},
		Rules: hints.SitupRules(),
	},
}

// Lookup returns the profile for t.
func Lookup(t Type) (*Profile, error) {
	p, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExercise, t)
	}
	return p, nil
}

// Types returns every supported exercise type, sorted.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Profiles returns every profile in Types order.
func Profiles() []*Profile {
	types := Types()
	out := make([]*Profile, len(types))
	for i, t := range types {
		out[i] = registry[t]
	}
	return out
}

// Info is the public description of a profile.
type Info struct {
	Type           Type              `json:"type"`
	Name           string            `json:"name"`
	Joints         []pose.KeypointID `json:"joints"`
	Defaults       Thresholds        `json:"defaults"`
	DebounceMS     int64             `json:"debounce_ms"`
	HintCategories []hints.Category  `json:"hint_categories"`
}

// Info describes p for clients.
func (p *Profile) Info() Info {
	cats := make([]hints.Category, len(p.Rules))
	for i, r := range p.Rules {
		cats[i] = r.Category
	}
	return Info{
		Type:           p.Type,
		Name:           p.Name,
		Joints:         p.Joints[:],
		Defaults:       p.Defaults,
		DebounceMS:     p.Defaults.DebounceMS(),
		HintCategories: cats,
	}
}

// Catalog describes every profile in Types order.
func Catalog() []Info {
	ps := Profiles()
	out := make([]Info, len(ps))
	for i, p := range ps {
		out[i] = p.Info()
	}
	return out
}
