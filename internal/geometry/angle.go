// Package geometry computes joint angles from normalized 2D keypoint positions.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/claude/repcam/internal/pose"
)

// DegenerateAngle is returned when an angle is undefined because one of its
// arms has zero length. A straight joint never triggers a DOWN transition.
const DegenerateAngle = 180.0

// Point converts a keypoint position to a vector.
func Point(kp pose.Keypoint) r2.Vec {
	return r2.Vec{X: kp.X, Y: kp.Y}
}

// AngleAt returns the angle in degrees, in [0,180], formed at vertex by the
// rays vertex→a and vertex→b.
func AngleAt(vertex, a, b r2.Vec) float64 {
	u := r2.Sub(a, vertex)
	v := r2.Sub(b, vertex)

	nu, nv := r2.Norm(u), r2.Norm(v)
	if nu == 0 || nv == 0 {
		return DegenerateAngle
	}

	// Rounding can push the ratio slightly outside [-1,1].
	cos := r2.Dot(u, v) / (nu * nv)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// JointAngle returns the angle at the middle keypoint of a triple.
func JointAngle(a, vertex, b pose.Keypoint) float64 {
	return AngleAt(Point(vertex), Point(a), Point(b))
}

// up points toward the top of the frame; image Y grows downward.
var up = r2.Vec{X: 0, Y: -1}

// AngleFromVertical returns how far the segment from→to leans away from
// straight up, in degrees. A zero-length segment reports 0.
func AngleFromVertical(from, to pose.Keypoint) float64 {
	p := Point(from)
	if r2.Norm(r2.Sub(Point(to), p)) == 0 {
		return 0
	}
	return AngleAt(p, Point(to), r2.Add(p, up))
}
