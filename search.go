package loc2d

import (
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/loc2d/pose"
	"go.viam.com/loc2d/scanmatch"
)

// maxFreeSampleTries bounds the rejection sampling of a free position per
// candidate. Past the bound the candidate keeps the last drawn position, so
// the search always terminates even on maps with almost no free space.
const maxFreeSampleTries = 100

// globalSearch scores uniformly drawn candidate poses over the map and
// returns the one whose scan lands closest to obstacles. The prediction is
// only returned as-is when the map offers nothing to sample.
func (l *Localizer) globalSearch(scan []r2.Point, predicted pose.Pose2D) pose.Pose2D {
	min, max, ok := l.grid.Bounds()
	if !ok || len(l.freeCells) == 0 {
		l.logger.Warnw("global localization on a map with no free space, keeping prediction")
		return predicted
	}

	res := l.grid.Resolution()
	minX := float64(min.X) * res
	minY := float64(min.Y) * res
	spanX := float64(max.X-min.X+1) * res
	spanY := float64(max.Y-min.Y+1) * res

	cost := scanmatch.NewCost(l.field, scan, predicted)
	best := predicted
	bestSSE := math.Inf(1)
	for i := 0; i < l.opts.Particles; i++ {
		var p r2.Point
		for try := 0; ; try++ {
			p = r2.Point{X: minX + l.rng.Float64()*spanX, Y: minY + l.rng.Float64()*spanY}
			if l.grid.IsFree(l.grid.CellOf(p)) || try >= maxFreeSampleTries {
				break
			}
		}
		candidate := pose.Pose2D{
			X:     p.X,
			Y:     p.Y,
			Theta: pose.NormalizeTheta(-math.Pi + 2*math.Pi*l.rng.Float64()),
		}
		cost.SetPose(candidate)
		if sse := cost.SumSquaredResiduals(); sse < bestSSE {
			bestSSE = sse
			best = candidate
		}
	}
	l.logger.Infow("global localization search done",
		"particles", l.opts.Particles, "best_sse", bestSSE, "pose", best.String())
	return best
}
