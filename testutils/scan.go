package testutils

import (
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/loc2d/gridmap"
	"go.viam.com/loc2d/pose"
)

// SimulateScan returns the sensor-frame cloud a 360 degree lidar at the
// given pose would record: one ray per beam at evenly spaced headings,
// keeping only beams that strike an obstacle within maxRange meters.
func SimulateScan(g *gridmap.OccupancyGrid, at pose.Pose2D, beams int, maxRange float64) []r2.Point {
	inv := at.Inverse()
	origin := at.Translation()
	scan := make([]r2.Point, 0, beams)
	for i := 0; i < beams; i++ {
		angle := -math.Pi + 2*math.Pi*float64(i)/float64(beams)
		hit, ok := g.Raycast(origin, at.Theta+angle, maxRange)
		if !ok {
			continue
		}
		scan = append(scan, inv.TransformPoint(hit))
	}
	return scan
}
