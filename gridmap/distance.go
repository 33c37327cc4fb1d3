package gridmap

import (
	"container/heap"
	"math"

	"github.com/golang/geo/r2"
)

// DistanceField is a dense field of truncated Euclidean distances to the
// nearest occupied cell of an occupancy grid, sampled at cell centers. It is
// immutable once built and safe for concurrent reads.
type DistanceField struct {
	resolution float64
	l2Max      float64
	origin     Cell
	width      int
	height     int
	dist       []float64
}

// NewDistanceField computes the distance field of a grid, truncated at l2Max
// meters. The field covers the grid bounds plus an l2Max margin; everything
// outside, and everything farther than l2Max from an obstacle, reads as
// l2Max. It panics if l2Max is not positive.
func NewDistanceField(g *OccupancyGrid, l2Max float64) *DistanceField {
	if l2Max <= 0 {
		panic("gridmap: l2Max must be positive")
	}
	f := &DistanceField{
		resolution: g.Resolution(),
		l2Max:      l2Max,
	}
	min, max, ok := g.Bounds()
	if !ok {
		return f
	}
	margin := int(math.Ceil(l2Max/f.resolution)) + 1
	f.origin = Cell{X: min.X - margin, Y: min.Y - margin}
	f.width = max.X - min.X + 1 + 2*margin
	f.height = max.Y - min.Y + 1 + 2*margin
	f.dist = make([]float64, f.width*f.height)
	for i := range f.dist {
		f.dist[i] = l2Max
	}
	f.propagate(g.CellsWithState(CellOccupied))
	return f
}

// propagate runs a best-first wavefront from every obstacle cell, tracking
// each visited cell's nearest obstacle so distances stay Euclidean rather
// than accumulating along grid paths.
func (f *DistanceField) propagate(obstacles []Cell) {
	n := f.width * f.height
	nearest := make([]Cell, n)
	settled := make([]bool, n)

	pq := make(waveHeap, 0, len(obstacles))
	for _, c := range obstacles {
		idx, ok := f.index(c)
		if !ok {
			continue
		}
		f.dist[idx] = 0
		nearest[idx] = c
		pq = append(pq, waveItem{idx: idx, dist: 0})
	}
	heap.Init(&pq)

	for pq.Len() > 0 {
		item := heap.Pop(&pq).(waveItem)
		if settled[item.idx] {
			continue
		}
		settled[item.idx] = true
		cx := f.origin.X + item.idx%f.width
		cy := f.origin.Y + item.idx/f.width
		src := nearest[item.idx]
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nc := Cell{X: cx + dx, Y: cy + dy}
				nidx, ok := f.index(nc)
				if !ok || settled[nidx] {
					continue
				}
				d := f.resolution * math.Hypot(float64(nc.X-src.X), float64(nc.Y-src.Y))
				if d >= f.dist[nidx] || d >= f.l2Max {
					continue
				}
				f.dist[nidx] = d
				nearest[nidx] = src
				heap.Push(&pq, waveItem{idx: nidx, dist: d})
			}
		}
	}
}

func (f *DistanceField) index(c Cell) (int, bool) {
	x := c.X - f.origin.X
	y := c.Y - f.origin.Y
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return 0, false
	}
	return y*f.width + x, true
}

// L2Max returns the truncation distance in meters.
func (f *DistanceField) L2Max() float64 {
	return f.l2Max
}

// Resolution returns the field resolution in meters per cell.
func (f *DistanceField) Resolution() float64 {
	return f.resolution
}

func (f *DistanceField) at(x, y int) float64 {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return f.l2Max
	}
	return f.dist[y*f.width+x]
}

// Distance returns the truncated distance to the nearest obstacle at a world
// point, bilinearly interpolated between cell centers.
func (f *DistanceField) Distance(p r2.Point) float64 {
	d, _ := f.DistanceGrad(p)
	return d
}

// DistanceGrad returns the interpolated distance at a world point together
// with its spatial gradient in meters per meter. Outside the field the
// distance is l2Max and the gradient is zero.
func (f *DistanceField) DistanceGrad(p r2.Point) (float64, r2.Point) {
	if f.width == 0 || f.height == 0 {
		return f.l2Max, r2.Point{}
	}
	// Continuous cell-center coordinates relative to the field origin.
	gx := p.X/f.resolution - 0.5 - float64(f.origin.X)
	gy := p.Y/f.resolution - 0.5 - float64(f.origin.Y)
	x0 := int(math.Floor(gx))
	y0 := int(math.Floor(gy))
	if x0 < -1 || x0 >= f.width || y0 < -1 || y0 >= f.height {
		return f.l2Max, r2.Point{}
	}
	fx := gx - float64(x0)
	fy := gy - float64(y0)

	d00 := f.at(x0, y0)
	d10 := f.at(x0+1, y0)
	d01 := f.at(x0, y0+1)
	d11 := f.at(x0+1, y0+1)

	top := (1-fx)*d00 + fx*d10
	bot := (1-fx)*d01 + fx*d11
	d := (1-fy)*top + fy*bot
	grad := r2.Point{
		X: ((1-fy)*(d10-d00) + fy*(d11-d01)) / f.resolution,
		Y: ((1-fx)*(d01-d00) + fx*(d11-d10)) / f.resolution,
	}
	return d, grad
}

type waveItem struct {
	idx  int
	dist float64
}

type waveHeap []waveItem

func (h waveHeap) Len() int           { return len(h) }
func (h waveHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h waveHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *waveHeap) Push(x any)        { *h = append(*h, x.(waveItem)) }
func (h *waveHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
