// Package hints turns a single frame of keypoints into short, prioritized
// coaching cues. Evaluation is pure: the same input always yields the same
// hints, and nothing is remembered between frames.
package hints

import (
	"sort"

	"github.com/claude/repcam/internal/pose"
)

// DefaultMaxHints is how many hints a frame carries unless configured otherwise.
const DefaultMaxHints = 2

// Category identifies the form issue a hint is about.
type Category string

const (
	KneeOverToes      Category = "knee_over_toes"
	BackRounding      Category = "back_rounding"
	DepthInsufficient Category = "depth_insufficient"
	Asymmetry         Category = "asymmetry"
	RangeLimited      Category = "range_limited"
	HipDrop           Category = "hip_drop"
	NeckStrain        Category = "neck_strain"
)

// Severity grades how far a measurement is past its tolerance.
type Severity string

const (
	Minor       Severity = "minor"
	Moderate    Severity = "moderate"
	Significant Severity = "significant"
)

// Priority maps severity to display order; lower is more important.
func (s Severity) Priority() int {
	switch s {
	case Significant:
		return 1
	case Moderate:
		return 2
	default:
		return 3
	}
}

// Hint is one coaching cue.
type Hint struct {
	Category   Category `json:"type"`
	Severity   Severity `json:"severity"`
	Priority   int      `json:"priority"`
	Message    string   `json:"message"`
	Correction string   `json:"correction"`
}

// Input is everything a rule may look at for one frame.
type Input struct {
	Frame *pose.Frame

	// Angle is the smoothed primary joint angle. AngleValid is false when the
	// joints it came from were not confidently detected this frame.
	Angle      float64
	AngleValid bool

	// Bottomed is true while the movement is in its DOWN phase. Valley is the
	// lowest angle reached in the current phase.
	Bottomed bool
	Valley   float64

	DownAngle float64
	UpAngle   float64
	SafeZone  float64

	// Mirrored is set when the user faces the other way and the right side
	// carries the movement. Rules name left-side joints; they are mirrored.
	Mirrored bool

	// Tolerance scales every rule threshold; 1 is the reference level.
	Tolerance float64
	// ConfidenceFloor is the minimum confidence for a rule's joints.
	ConfidenceFloor float64
}

func (in Input) tolerance() float64 {
	if in.Tolerance <= 0 {
		return 1
	}
	return in.Tolerance
}

func (in Input) joint(id pose.KeypointID) pose.KeypointID {
	if in.Mirrored {
		return id.Mirror()
	}
	return id
}

func (in Input) get(id pose.KeypointID) pose.Keypoint {
	kp, _ := in.Frame.Get(in.joint(id))
	return kp
}

func (in Input) confident(ids []pose.KeypointID) bool {
	for _, id := range ids {
		if in.Frame.Confidence(in.joint(id)) < in.ConfidenceFloor {
			return false
		}
	}
	return true
}

// Rule inspects one aspect of form. Check is only called when every joint in
// Joints, mirrored if the input is, is detected at or above the confidence
// floor.
type Rule struct {
	Category Category
	Joints   []pose.KeypointID
	Check    func(in Input) (Severity, bool)
}

// Evaluate runs every applicable rule and returns the hints ordered by
// priority, most important first. Rules whose joints are not confidently
// detected are skipped without comment.
func Evaluate(rules []Rule, in Input) []Hint {
	var out []Hint
	for _, r := range rules {
		if in.Frame == nil || !in.confident(r.Joints) {
			continue
		}
		sev, ok := r.Check(in)
		if !ok {
			continue
		}
		out = append(out, newHint(r.Category, sev))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Top returns at most n hints from an ordered slice. n <= 0 means no limit.
func Top(hs []Hint, n int) []Hint {
	if n > 0 && len(hs) > n {
		return hs[:n]
	}
	return hs
}

func newHint(c Category, s Severity) Hint {
	return Hint{
		Category:   c,
		Severity:   s,
		Priority:   s.Priority(),
		Message:    messages[c][s],
		Correction: corrections[c],
	}
}

// grade picks a severity from how far value exceeds its limits. Values at or
// below minor report ok=false.
func grade(value, minor, moderate, significant float64) (Severity, bool) {
	switch {
	case value > significant:
		return Significant, true
	case value > moderate:
		return Moderate, true
	case value > minor:
		return Minor, true
	}
	return "", false
}
