package hints

import (
	"math"

	"github.com/claude/repcam/internal/geometry"
	"github.com/claude/repcam/internal/pose"
)

// Messages stay encouraging at every severity.
var messages = map[Category]map[Severity]string{
	KneeOverToes: {
		Minor:       "Nice pace! Try keeping your knees a little further back.",
		Moderate:    "You're doing well! Focus on pushing your hips back.",
		Significant: "Let's adjust: sit back as if lowering onto a chair.",
	},
	BackRounding: {
		Minor:       "Almost perfect! Keep your chest up.",
		Moderate:    "Good work! Look ahead to help your posture.",
		Significant: "You've got this! Imagine a string pulling your chest upward.",
	},
	DepthInsufficient: {
		Minor:       "Great! Go a little deeper when it feels comfortable.",
		Moderate:    "Very good! Go as low as is comfortable, a bit more each time.",
		Significant: "Keep going! Flexibility comes with practice.",
	},
	Asymmetry: {
		Minor:       "Good form! Spread your weight evenly on both sides.",
		Moderate:    "You're improving! Keep both sides moving together.",
		Significant: "Let's balance: pay attention to both sides of your body.",
	},
	RangeLimited: {
		Minor:       "Good start! Your range will grow over time.",
		Moderate:    "Progress is progress! Keep practicing.",
		Significant: "A little better every day! Respect your limits.",
	},
	HipDrop: {
		Minor:       "Great line! Keep your hips aligned.",
		Moderate:    "Core tight! Lift your hips a little.",
		Significant: "You can do it! Picture a straight line from head to heels.",
	},
	NeckStrain: {
		Minor:       "Good posture! Keep your neck neutral.",
		Moderate:    "Relax your neck! Pick a fixed point to look at.",
		Significant: "Careful with your neck! Keep it in line with your spine.",
	},
}

var corrections = map[Category]string{
	KneeOverToes:      "Push your hips back before bending your knees",
	BackRounding:      "Keep your chest up and look forward",
	DepthInsufficient: "Lower until your thighs are parallel to the floor",
	Asymmetry:         "Distribute your weight evenly between both feet",
	RangeLimited:      "Stretch before training to open up your range",
	HipDrop:           "Brace your abs and glutes",
	NeckStrain:        "Keep your gaze down and your neck neutral",
}

// Limits for the left-side reference rules, at tolerance 1. Offsets are
// fractions of frame width or height; angles are degrees.
const (
	kneeOffsetMinor       = 0.08
	kneeOffsetModerate    = 0.10
	kneeOffsetSignificant = 0.15

	trunkLeanModerate    = 40.0
	trunkLeanSignificant = 60.0

	kneeLevelMinor    = 0.05
	kneeLevelModerate = 0.10

	bodyLineModerate    = 20.0
	bodyLineSignificant = 40.0

	neckFlexModerate    = 45.0
	neckFlexSignificant = 70.0
)

// SquatRules checks knee tracking, trunk lean, depth and left/right balance.
func SquatRules() []Rule {
	return []Rule{
		{
			Category: KneeOverToes,
			Joints:   []pose.KeypointID{pose.LeftKnee, pose.LeftAnkle},
			Check: func(in Input) (Severity, bool) {
				t := in.tolerance()
				offset := math.Abs(in.get(pose.LeftKnee).X - in.get(pose.LeftAnkle).X)
				return grade(offset, kneeOffsetMinor*t, kneeOffsetModerate*t, kneeOffsetSignificant*t)
			},
		},
		{
			Category: BackRounding,
			Joints:   []pose.KeypointID{pose.LeftShoulder, pose.LeftHip},
			Check: func(in Input) (Severity, bool) {
				t := in.tolerance()
				lean := geometry.AngleFromVertical(in.get(pose.LeftHip), in.get(pose.LeftShoulder))
				return grade(lean, trunkLeanModerate*t, trunkLeanModerate*t, trunkLeanSignificant*t)
			},
		},
		depthRule(DepthInsufficient),
		{
			Category: Asymmetry,
			Joints:   []pose.KeypointID{pose.LeftKnee, pose.RightKnee},
			Check: func(in Input) (Severity, bool) {
				t := in.tolerance()
				diff := math.Abs(in.get(pose.LeftKnee).Y - in.get(pose.RightKnee).Y)
				return grade(diff, kneeLevelMinor*t, kneeLevelModerate*t, math.Inf(1))
			},
		},
	}
}

// PushupRules checks the shoulder–hip–ankle line and depth.
func PushupRules() []Rule {
	return []Rule{
		{
			Category: HipDrop,
			Joints:   []pose.KeypointID{pose.LeftShoulder, pose.LeftHip, pose.LeftAnkle},
			Check: func(in Input) (Severity, bool) {
				t := in.tolerance()
				line := geometry.JointAngle(in.get(pose.LeftShoulder), in.get(pose.LeftHip), in.get(pose.LeftAnkle))
				return grade(180-line, bodyLineModerate*t, bodyLineModerate*t, bodyLineSignificant*t)
			},
		},
		depthRule(DepthInsufficient),
	}
}

// SitupRules checks range of motion and neck flexion.
func SitupRules() []Rule {
	return []Rule{
		depthRule(RangeLimited),
		{
			Category: NeckStrain,
			Joints:   []pose.KeypointID{pose.Nose, pose.LeftShoulder, pose.LeftHip},
			Check: func(in Input) (Severity, bool) {
				t := in.tolerance()
				flex := 180 - geometry.JointAngle(in.get(pose.LeftHip), in.get(pose.LeftShoulder), in.get(pose.Nose))
				return grade(flex, neckFlexModerate*t, neckFlexModerate*t, neckFlexSignificant*t)
			},
		},
	}
}

// depthRule fires when the user turns back up before reaching the bottom:
// still in the UP phase, visibly descended, now rising, and the lowest point
// stayed above the full-rep limit. It relies on the primary angle, so it is
// silent whenever that angle is unreliable.
func depthRule(c Category) Rule {
	return Rule{
		Category: c,
		Check: func(in Input) (Severity, bool) {
			if !in.AngleValid || in.Bottomed {
				return "", false
			}
			descended := in.Valley < in.UpAngle-in.SafeZone
			rising := in.Angle > in.Valley+in.SafeZone && in.Angle < in.UpAngle
			if !descended || !rising {
				return "", false
			}
			t := in.tolerance()
			excess := in.Valley - (in.DownAngle + in.SafeZone*t)
			return grade(excess, 0, in.SafeZone*t, 2*in.SafeZone*t)
		},
	}
}
