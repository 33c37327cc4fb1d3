// Package scanmatch scores a laser scan against an obstacle-distance field.
// The residual of each scan point is the field's truncated distance at the
// point after transforming it by the current pose estimate, which makes pose
// refinement a three-parameter nonlinear least-squares problem.
package scanmatch

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/loc2d/gridmap"
	"go.viam.com/loc2d/pose"
)

// Cost matches a fixed sensor-frame point cloud against a distance field at
// an adjustable pose. It implements the solver's Problem interface; solving
// it moves the pose so the cloud lands on nearby obstacles.
type Cost struct {
	field  *gridmap.DistanceField
	points []r2.Point
	pose   pose.Pose2D
}

// NewCost returns a cost over the given sensor-frame points, starting at the
// given pose. The point slice is retained, not copied.
func NewCost(field *gridmap.DistanceField, points []r2.Point, initial pose.Pose2D) *Cost {
	return &Cost{field: field, points: points, pose: initial}
}

// Pose returns the current pose estimate.
func (c *Cost) Pose() pose.Pose2D {
	return c.pose
}

// SetPose moves the estimate without touching the point cloud, so one Cost
// can score many candidate poses.
func (c *Cost) SetPose(p pose.Pose2D) {
	c.pose = p
}

// Dims returns one residual per scan point over the three pose parameters.
func (c *Cost) Dims() (int, int) {
	return len(c.points), 3
}

// Update applies an (x, y, theta) step to the pose, renormalizing the
// heading.
func (c *Cost) Update(step mat.Vector) {
	c.pose.X += step.AtVec(0)
	c.pose.Y += step.AtVec(1)
	c.pose.Theta = pose.NormalizeTheta(c.pose.Theta + step.AtVec(2))
}

// Eval writes one residual per point, the field distance at the transformed
// point, and optionally the Jacobian of those distances with respect to the
// pose.
func (c *Cost) Eval(r *mat.VecDense, jac *mat.Dense) {
	n := len(c.points)
	r.Reset()
	if jac != nil {
		jac.Reset()
	}
	if n == 0 {
		return
	}
	r.ReuseVec(n)
	if jac != nil {
		jac.ReuseAs(n, 3)
	}

	sin, cos := math.Sincos(c.pose.Theta)
	for i, p := range c.points {
		w := r2.Point{
			X: c.pose.X + cos*p.X - sin*p.Y,
			Y: c.pose.Y + sin*p.X + cos*p.Y,
		}
		d, grad := c.field.DistanceGrad(w)
		r.SetVec(i, d)
		if jac == nil {
			continue
		}
		// Chain rule through the rigid transform: the heading column is the
		// gradient dotted with the derivative of the rotated point.
		jac.Set(i, 0, grad.X)
		jac.Set(i, 1, grad.Y)
		jac.Set(i, 2, grad.X*(-sin*p.X-cos*p.Y)+grad.Y*(cos*p.X-sin*p.Y))
	}
}

// SumSquaredResiduals scores the cloud at the current pose without forming
// solver buffers, for use in candidate search loops.
func (c *Cost) SumSquaredResiduals() float64 {
	sin, cos := math.Sincos(c.pose.Theta)
	var sse float64
	for _, p := range c.points {
		w := r2.Point{
			X: c.pose.X + cos*p.X - sin*p.Y,
			Y: c.pose.Y + sin*p.X + cos*p.Y,
		}
		d := c.field.Distance(w)
		sse += d * d
	}
	return sse
}

// RMSE returns the sample root-mean-square error of the residuals at the
// current pose.
func (c *Cost) RMSE() float64 {
	n := len(c.points)
	if n == 0 {
		return 0
	}
	denom := float64(n - 1)
	if denom < 1 {
		denom = 1
	}
	return math.Sqrt(c.SumSquaredResiduals() / denom)
}
