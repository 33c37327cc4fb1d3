// Package pose provides SE(2) rigid transforms and the composition and
// relative-difference operators the localizer builds on.
package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Pose2D is a 2D rigid transform; Theta is kept in (-pi, pi].
type Pose2D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose2D returns a pose with the angle normalized into (-pi, pi].
func NewPose2D(x, y, theta float64) Pose2D {
	return Pose2D{X: x, Y: y, Theta: NormalizeTheta(theta)}
}

// NormalizeTheta wraps any finite angle into (-pi, pi].
func NormalizeTheta(theta float64) float64 {
	theta = math.Mod(theta+math.Pi, 2*math.Pi)
	if theta <= 0 {
		theta += 2 * math.Pi
	}
	return theta - math.Pi
}

// Compose applies b in a's frame: b's translation is rotated by a.Theta and
// added to a's, and the angles are summed.
func Compose(a, b Pose2D) Pose2D {
	sin, cos := math.Sincos(a.Theta)
	return Pose2D{
		X:     a.X + cos*b.X - sin*b.Y,
		Y:     a.Y + sin*b.X + cos*b.Y,
		Theta: NormalizeTheta(a.Theta + b.Theta),
	}
}

// Difference returns the relative pose that, composed onto b, reconstructs a,
// so Compose(b, Difference(a, b)) == a. Difference(a, a) is the identity.
func Difference(a, b Pose2D) Pose2D {
	return Compose(b.Inverse(), a)
}

// Inverse returns the transform undoing p.
func (p Pose2D) Inverse() Pose2D {
	sin, cos := math.Sincos(p.Theta)
	return Pose2D{
		X:     -(cos*p.X + sin*p.Y),
		Y:     -(-sin*p.X + cos*p.Y),
		Theta: NormalizeTheta(-p.Theta),
	}
}

// TransformPoint maps a point from p's frame into the world frame.
func (p Pose2D) TransformPoint(pt r2.Point) r2.Point {
	sin, cos := math.Sincos(p.Theta)
	return r2.Point{
		X: p.X + cos*pt.X - sin*pt.Y,
		Y: p.Y + sin*pt.X + cos*pt.Y,
	}
}

// Translation returns the translational part of p.
func (p Pose2D) Translation() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// AlmostEqual reports whether both translations and angles are within eps.
// The angle comparison wraps, so poses at -pi and pi compare equal.
func (p Pose2D) AlmostEqual(q Pose2D, eps float64) bool {
	return math.Abs(p.X-q.X) <= eps &&
		math.Abs(p.Y-q.Y) <= eps &&
		math.Abs(NormalizeTheta(p.Theta-q.Theta)) <= eps
}

func (p Pose2D) String() string {
	return fmt.Sprintf("(x: %.3f, y: %.3f, theta: %.3f)", p.X, p.Y, p.Theta)
}
