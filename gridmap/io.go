package gridmap

import (
	"compress/gzip"
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

// gridSnapshot is the gob wire form of an occupancy grid: the grid parameters
// plus a flat list of every non-unknown cell.
type gridSnapshot struct {
	Resolution float64
	Cells      []snapshotCell
}

type snapshotCell struct {
	X, Y  int
	State CellState
}

// Write serializes the grid as a gzip-compressed gob stream.
func (g *OccupancyGrid) Write(w io.Writer) error {
	snap := gridSnapshot{Resolution: g.resolution}
	g.Iterate(func(c Cell, s CellState) bool {
		snap.Cells = append(snap.Cells, snapshotCell{X: c.X, Y: c.Y, State: s})
		return true
	})

	gz := gzip.NewWriter(w)
	if err := gob.NewEncoder(gz).Encode(snap); err != nil {
		gz.Close()
		return errors.Wrap(err, "encoding grid")
	}
	return errors.Wrap(gz.Close(), "flushing grid")
}

// ReadOccupancyGrid reads a grid previously serialized with Write.
func ReadOccupancyGrid(r io.Reader) (*OccupancyGrid, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening grid stream")
	}
	defer gz.Close()

	var snap gridSnapshot
	if err := gob.NewDecoder(gz).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "decoding grid")
	}
	if snap.Resolution <= 0 {
		return nil, errors.Errorf("grid stream has invalid resolution %f", snap.Resolution)
	}
	g := NewOccupancyGrid(snap.Resolution)
	for _, c := range snap.Cells {
		g.SetState(Cell{X: c.X, Y: c.Y}, c.State)
	}
	return g, nil
}
