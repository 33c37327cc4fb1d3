package gridmap

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestCellAddressing(t *testing.T) {
	g := NewOccupancyGrid(0.05)

	test.That(t, g.CellOf(r2.Point{X: 0.01, Y: 0.01}), test.ShouldResemble, Cell{0, 0})
	test.That(t, g.CellOf(r2.Point{X: 0.06, Y: 0.14}), test.ShouldResemble, Cell{1, 2})
	// Negative coordinates floor toward minus infinity.
	test.That(t, g.CellOf(r2.Point{X: -0.01, Y: 0.01}), test.ShouldResemble, Cell{-1, 0})
	test.That(t, g.CellOf(r2.Point{X: -0.06, Y: -0.06}), test.ShouldResemble, Cell{-2, -2})

	center := g.CellCenter(Cell{-1, 0})
	test.That(t, center.X, test.ShouldAlmostEqual, -0.025, 1e-12)
	test.That(t, center.Y, test.ShouldAlmostEqual, 0.025, 1e-12)

	// A cell center always maps back to its own cell.
	for _, c := range []Cell{{0, 0}, {7, -3}, {-40, 40}, {100, 100}} {
		test.That(t, g.CellOf(g.CellCenter(c)), test.ShouldResemble, c)
	}
}

func TestSetStateAndBounds(t *testing.T) {
	g := NewOccupancyGrid(0.1)

	_, _, ok := g.Bounds()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, g.StateAt(Cell{3, 3}), test.ShouldEqual, CellUnknown)

	// Spread across several patches, including negative coordinates.
	g.SetState(Cell{-1, -1}, CellOccupied)
	g.SetState(Cell{40, 5}, CellFree)
	g.SetState(Cell{3, 70}, CellOccupied)

	test.That(t, g.StateAt(Cell{-1, -1}), test.ShouldEqual, CellOccupied)
	test.That(t, g.StateAt(Cell{40, 5}), test.ShouldEqual, CellFree)
	test.That(t, g.StateAt(Cell{3, 70}), test.ShouldEqual, CellOccupied)
	test.That(t, g.StateAt(Cell{0, 0}), test.ShouldEqual, CellUnknown)

	min, max, ok := g.Bounds()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, min, test.ShouldResemble, Cell{-1, -1})
	test.That(t, max, test.ShouldResemble, Cell{40, 70})

	// Overwrites stick.
	g.SetState(Cell{40, 5}, CellOccupied)
	test.That(t, g.StateAt(Cell{40, 5}), test.ShouldEqual, CellOccupied)
}

func TestIsFree(t *testing.T) {
	g := NewOccupancyGrid(0.05)
	g.SetState(Cell{1, 1}, CellFree)
	g.SetState(Cell{2, 2}, CellOccupied)

	test.That(t, g.IsFree(Cell{1, 1}), test.ShouldBeTrue)
	test.That(t, g.IsFree(Cell{2, 2}), test.ShouldBeFalse)
	// Unknown space is not free.
	test.That(t, g.IsFree(Cell{5, 5}), test.ShouldBeFalse)
}

func TestIterateAndCellsWithState(t *testing.T) {
	g := NewOccupancyGrid(0.05)
	occ := []Cell{{0, 0}, {31, 31}, {32, 0}}
	free := []Cell{{1, 0}, {-5, -5}}
	for _, c := range occ {
		g.SetState(c, CellOccupied)
	}
	for _, c := range free {
		g.SetState(c, CellFree)
	}

	seen := map[Cell]CellState{}
	g.Iterate(func(c Cell, s CellState) bool {
		seen[c] = s
		return true
	})
	test.That(t, len(seen), test.ShouldEqual, len(occ)+len(free))
	for _, c := range occ {
		test.That(t, seen[c], test.ShouldEqual, CellOccupied)
	}
	for _, c := range free {
		test.That(t, seen[c], test.ShouldEqual, CellFree)
	}

	test.That(t, len(g.CellsWithState(CellOccupied)), test.ShouldEqual, len(occ))
	test.That(t, len(g.CellsWithState(CellFree)), test.ShouldEqual, len(free))

	// Iterate stops when the callback declines more cells.
	count := 0
	g.Iterate(func(Cell, CellState) bool {
		count++
		return false
	})
	test.That(t, count, test.ShouldEqual, 1)
}

func TestInsertRay(t *testing.T) {
	g := NewOccupancyGrid(0.1)
	from := r2.Point{X: 0.05, Y: 0.05}
	to := r2.Point{X: 0.55, Y: 0.05}
	g.InsertRay(from, to)

	for x := 0; x < 5; x++ {
		test.That(t, g.StateAt(Cell{x, 0}), test.ShouldEqual, CellFree)
	}
	test.That(t, g.StateAt(Cell{5, 0}), test.ShouldEqual, CellOccupied)

	// A later ray through the same obstacle must not clear it.
	g.InsertRay(from, r2.Point{X: 0.95, Y: 0.05})
	test.That(t, g.StateAt(Cell{5, 0}), test.ShouldEqual, CellOccupied)
	test.That(t, g.StateAt(Cell{9, 0}), test.ShouldEqual, CellOccupied)

	// Degenerate zero-length ray only marks the endpoint.
	g2 := NewOccupancyGrid(0.1)
	g2.InsertRay(from, from)
	test.That(t, g2.StateAt(Cell{0, 0}), test.ShouldEqual, CellOccupied)
}

func TestRaycast(t *testing.T) {
	g := NewOccupancyGrid(0.1)
	// Vertical wall at x cell 10.
	for y := -5; y <= 5; y++ {
		g.SetState(Cell{10, y}, CellOccupied)
	}

	origin := r2.Point{X: 0.05, Y: 0.05}
	hit, ok := g.Raycast(origin, 0, 5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.X, test.ShouldAlmostEqual, 1.05, 1e-12)
	test.That(t, hit.Y, test.ShouldAlmostEqual, 0.05, 1e-12)

	// Pointing away from the wall sees nothing.
	_, ok = g.Raycast(origin, math.Pi, 5)
	test.That(t, ok, test.ShouldBeFalse)

	// Range shorter than the wall distance sees nothing.
	_, ok = g.Raycast(origin, 0, 0.5)
	test.That(t, ok, test.ShouldBeFalse)

	// Starting inside an obstacle hits immediately.
	hit, ok = g.Raycast(r2.Point{X: 1.05, Y: 0.05}, 0, 5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.X, test.ShouldAlmostEqual, 1.05, 1e-12)

	// Diagonal cast reaches the wall too.
	hit, ok = g.Raycast(origin, math.Atan2(0.3, 1.0), 5)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.X, test.ShouldAlmostEqual, 1.05, 1e-12)
}
