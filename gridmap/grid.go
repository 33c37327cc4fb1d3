// Package gridmap provides the sparse 2D occupancy grid the localizer matches
// scans against, along with the truncated obstacle-distance field derived from
// it. Grids are tiled into fixed-size patches allocated on demand, so memory
// tracks the mapped area rather than the bounding box.
package gridmap

import (
	"math"

	"github.com/golang/geo/r2"
)

// DefaultPatchSize is the side length, in cells, of a grid patch.
const DefaultPatchSize = 32

// CellState is the tri-state occupancy of a single cell.
type CellState uint8

const (
	// CellUnknown marks never-observed space. It is the zero value.
	CellUnknown CellState = iota
	// CellFree marks observed free space.
	CellFree
	// CellOccupied marks an obstacle.
	CellOccupied
)

func (s CellState) String() string {
	switch s {
	case CellFree:
		return "free"
	case CellOccupied:
		return "occupied"
	case CellUnknown:
		fallthrough
	default:
		return "unknown"
	}
}

// Cell addresses a grid cell by integer coordinates. Cell (0,0) spans world
// coordinates [0,resolution) on both axes.
type Cell struct {
	X, Y int
}

type patchKey struct {
	x, y int
}

type patch struct {
	cells []CellState
}

// OccupancyGrid is a sparse tri-state occupancy grid over patches keyed by
// patch coordinate. The zero state of every cell is CellUnknown.
type OccupancyGrid struct {
	resolution float64
	patchSize  int
	patches    map[patchKey]*patch

	hasBounds  bool
	minC, maxC Cell
}

// NewOccupancyGrid returns an empty grid with the given resolution in meters
// per cell. It panics if the resolution is not positive.
func NewOccupancyGrid(resolution float64) *OccupancyGrid {
	return NewOccupancyGridWithPatchSize(resolution, DefaultPatchSize)
}

// NewOccupancyGridWithPatchSize is NewOccupancyGrid with an explicit patch
// side length in cells. It panics if either argument is not positive.
func NewOccupancyGridWithPatchSize(resolution float64, patchSize int) *OccupancyGrid {
	if resolution <= 0 {
		panic("gridmap: resolution must be positive")
	}
	if patchSize <= 0 {
		panic("gridmap: patch size must be positive")
	}
	return &OccupancyGrid{
		resolution: resolution,
		patchSize:  patchSize,
		patches:    map[patchKey]*patch{},
	}
}

// Resolution returns the grid resolution in meters per cell.
func (g *OccupancyGrid) Resolution() float64 {
	return g.resolution
}

// CellOf returns the cell containing a world point.
func (g *OccupancyGrid) CellOf(p r2.Point) Cell {
	return Cell{
		X: int(math.Floor(p.X / g.resolution)),
		Y: int(math.Floor(p.Y / g.resolution)),
	}
}

// CellCenter returns the world coordinates of a cell's center.
func (g *OccupancyGrid) CellCenter(c Cell) r2.Point {
	return r2.Point{
		X: (float64(c.X) + 0.5) * g.resolution,
		Y: (float64(c.Y) + 0.5) * g.resolution,
	}
}

func (g *OccupancyGrid) split(c Cell) (patchKey, int) {
	px := floorDiv(c.X, g.patchSize)
	py := floorDiv(c.Y, g.patchSize)
	ix := c.X - px*g.patchSize
	iy := c.Y - py*g.patchSize
	return patchKey{px, py}, iy*g.patchSize + ix
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// StateAt returns the state of a cell. Cells never written are CellUnknown.
func (g *OccupancyGrid) StateAt(c Cell) CellState {
	key, idx := g.split(c)
	p, ok := g.patches[key]
	if !ok {
		return CellUnknown
	}
	return p.cells[idx]
}

// SetState writes the state of a cell, allocating its patch on first touch.
func (g *OccupancyGrid) SetState(c Cell, s CellState) {
	key, idx := g.split(c)
	p, ok := g.patches[key]
	if !ok {
		if s == CellUnknown {
			return
		}
		p = &patch{cells: make([]CellState, g.patchSize*g.patchSize)}
		g.patches[key] = p
	}
	p.cells[idx] = s
	if s == CellUnknown {
		return
	}
	if !g.hasBounds {
		g.hasBounds = true
		g.minC, g.maxC = c, c
		return
	}
	if c.X < g.minC.X {
		g.minC.X = c.X
	}
	if c.Y < g.minC.Y {
		g.minC.Y = c.Y
	}
	if c.X > g.maxC.X {
		g.maxC.X = c.X
	}
	if c.Y > g.maxC.Y {
		g.maxC.Y = c.Y
	}
}

// IsFree reports whether a cell has been observed free. Unknown cells are not
// free.
func (g *OccupancyGrid) IsFree(c Cell) bool {
	return g.StateAt(c) == CellFree
}

// Bounds returns the inclusive cell bounds of everything ever marked free or
// occupied. ok is false for a grid with no observed cells.
func (g *OccupancyGrid) Bounds() (min, max Cell, ok bool) {
	return g.minC, g.maxC, g.hasBounds
}

// Iterate visits every non-unknown cell until fn returns false. Visit order
// is unspecified.
func (g *OccupancyGrid) Iterate(fn func(c Cell, s CellState) bool) {
	for key, p := range g.patches {
		baseX := key.x * g.patchSize
		baseY := key.y * g.patchSize
		for idx, s := range p.cells {
			if s == CellUnknown {
				continue
			}
			c := Cell{X: baseX + idx%g.patchSize, Y: baseY + idx/g.patchSize}
			if !fn(c, s) {
				return
			}
		}
	}
}

// CellsWithState returns all cells currently in the given state.
func (g *OccupancyGrid) CellsWithState(s CellState) []Cell {
	var out []Cell
	g.Iterate(func(c Cell, cs CellState) bool {
		if cs == s {
			out = append(out, c)
		}
		return true
	})
	return out
}

// InsertRay marks the cells from one world point toward another as free and
// the final cell as occupied, the usual update for a single range return.
func (g *OccupancyGrid) InsertRay(from, to r2.Point) {
	end := g.CellOf(to)
	d := to.Sub(from)
	dist := d.Norm()
	if dist > 0 {
		g.traverse(from, d.X/dist, d.Y/dist, dist, func(c Cell) bool {
			if c == end {
				return false
			}
			// Occupied observations win over free ones.
			if g.StateAt(c) != CellOccupied {
				g.SetState(c, CellFree)
			}
			return true
		})
	}
	g.SetState(end, CellOccupied)
}

// Raycast walks from a world origin along a heading until it enters an
// occupied cell or exceeds maxRange meters. On a hit it returns the center of
// the occupied cell.
func (g *OccupancyGrid) Raycast(origin r2.Point, angle, maxRange float64) (hit r2.Point, ok bool) {
	sin, cos := math.Sincos(angle)
	g.traverse(origin, cos, sin, maxRange, func(c Cell) bool {
		if g.StateAt(c) == CellOccupied {
			hit = g.CellCenter(c)
			ok = true
			return false
		}
		return true
	})
	return hit, ok
}

// traverse visits the cells a ray passes through, in order, up to maxDist
// meters from the origin, until visit returns false. dx,dy must be a unit
// direction.
func (g *OccupancyGrid) traverse(origin r2.Point, dx, dy, maxDist float64, visit func(Cell) bool) {
	c := g.CellOf(origin)

	stepX, tMaxX, tDeltaX := axisSteps(origin.X, dx, c.X, g.resolution)
	stepY, tMaxY, tDeltaY := axisSteps(origin.Y, dy, c.Y, g.resolution)

	t := 0.0
	for t <= maxDist {
		if !visit(c) {
			return
		}
		if tMaxX < tMaxY {
			t = tMaxX
			tMaxX += tDeltaX
			c.X += stepX
		} else {
			t = tMaxY
			tMaxY += tDeltaY
			c.Y += stepY
		}
	}
}

// axisSteps returns the per-axis traversal state: the cell step direction,
// the ray length to the first cell boundary on this axis, and the ray length
// between successive boundaries.
func axisSteps(origin, dir float64, cell int, resolution float64) (step int, tMax, tDelta float64) {
	if dir > 0 {
		boundary := (float64(cell) + 1) * resolution
		return 1, (boundary - origin) / dir, resolution / dir
	}
	if dir < 0 {
		boundary := float64(cell) * resolution
		return -1, (boundary - origin) / dir, -resolution / dir
	}
	return 0, math.Inf(1), math.Inf(1)
}
