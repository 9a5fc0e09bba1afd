package exercise

import "fmt"

// FitnessLevel adjusts how strict form hints are.
type FitnessLevel string

const (
	Beginner     FitnessLevel = "beginner"
	Intermediate FitnessLevel = "intermediate"
	Advanced     FitnessLevel = "advanced"
)

// Tolerance returns the multiplier applied to form-rule limits.
// Beginners get 50% more room, advanced users 20% less.
func (l FitnessLevel) Tolerance() float64 {
	switch l {
	case Beginner:
		return 1.5
	case Advanced:
		return 0.8
	default:
		return 1.0
	}
}

// Valid reports whether l is empty or a known level.
func (l FitnessLevel) Valid() bool {
	switch l {
	case "", Beginner, Intermediate, Advanced:
		return true
	}
	return false
}

// Calibration is a per-session override. Every field is optional; unset
// fields keep the profile default.
type Calibration struct {
	DownAngle    *float64     `json:"down_angle,omitempty"`
	UpAngle      *float64     `json:"up_angle,omitempty"`
	SafeZone     *float64     `json:"safe_zone,omitempty"`
	DebounceMS   *int64       `json:"debounce_ms,omitempty"`
	FitnessLevel FitnessLevel `json:"fitness_level,omitempty"`
}

// Level returns the calibration's fitness level, or intermediate when unset.
func (c *Calibration) Level() FitnessLevel {
	if c == nil || c.FitnessLevel == "" {
		return Intermediate
	}
	return c.FitnessLevel
}

// Check validates fields that do not depend on a profile.
func (c *Calibration) Check() error {
	if c == nil {
		return nil
	}
	if !c.FitnessLevel.Valid() {
		return fmt.Errorf("%w: unknown fitness_level %q", ErrInvalidCalibration, c.FitnessLevel)
	}
	return nil
}
