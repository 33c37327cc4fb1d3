// Package testutils builds small synthetic worlds and simulates the laser
// scans a robot would record in them, for exercising localization without
// hardware or recorded logs.
package testutils

import (
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/loc2d/gridmap"
)

// RectangleRoom returns a grid holding a closed rectangular room: occupied
// outer walls around a free interior. Width and height are in meters, with
// the room's southwest wall corner at the origin.
func RectangleRoom(resolution, width, height float64) *gridmap.OccupancyGrid {
	g := gridmap.NewOccupancyGrid(resolution)
	w := int(math.Round(width / resolution))
	h := int(math.Round(height / resolution))
	for x := 0; x <= w; x++ {
		g.SetState(gridmap.Cell{X: x, Y: 0}, gridmap.CellOccupied)
		g.SetState(gridmap.Cell{X: x, Y: h}, gridmap.CellOccupied)
	}
	for y := 0; y <= h; y++ {
		g.SetState(gridmap.Cell{X: 0, Y: y}, gridmap.CellOccupied)
		g.SetState(gridmap.Cell{X: w, Y: y}, gridmap.CellOccupied)
	}
	for x := 1; x < w; x++ {
		for y := 1; y < h; y++ {
			g.SetState(gridmap.Cell{X: x, Y: y}, gridmap.CellFree)
		}
	}
	return g
}

// AddBox fills an axis-aligned box of cells with obstacle, overriding any
// previous state. Corners are in meters.
func AddBox(g *gridmap.OccupancyGrid, min, max r2.Point) {
	lo := g.CellOf(min)
	hi := g.CellOf(max)
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			g.SetState(gridmap.Cell{X: x, Y: y}, gridmap.CellOccupied)
		}
	}
}
