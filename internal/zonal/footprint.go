package zonal

import (
	"errors"
	"math"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/ctessum/geom"
)

// ErrRotatedGrid is returned for grids whose transform is not north-up.
var ErrRotatedGrid = errors.New("zonal statistics need a north-up grid")

// Footprint is the set of grid cells a zone touches, as a mask over a window.
type Footprint struct {
	Window raster.Window
	mask   []bool
	cells  int
}

// Cells is the number of cells in the footprint.
func (f Footprint) Cells() int { return f.cells }

// Empty reports whether the footprint holds no cell.
func (f Footprint) Empty() bool { return f.cells == 0 }

// Contains reports whether cell (row, col), in grid coordinates, is part of f.
func (f Footprint) Contains(row, col int) bool {
	r, c := row-f.Window.Row, col-f.Window.Col
	if r < 0 || c < 0 || r >= f.Window.Height || c >= f.Window.Width {
		return false
	}
	return f.mask[r*f.Window.Width+c]
}

// Each calls fn for every value of data, read over f.Window, that lies in f.
func (f Footprint) Each(data []float32, fn func(float32)) {
	for i, in := range f.mask {
		if in {
			fn(data[i])
		}
	}
}

// NewFootprint computes the all-touched footprint of g on the grid described by
// meta: a cell belongs to it when its center lies inside or on g, or when a
// boundary segment of g passes through the cell. Polygons outside the grid
// yield an empty footprint.
func NewFootprint(meta raster.Meta, g geom.Polygonal) (Footprint, error) {
	if !meta.NorthUp() {
		return Footprint{}, ErrRotatedGrid
	}
	zone := Zone{Geometry: g}
	win, ok := meta.WindowFor(zone.Rect())
	if !ok {
		return Footprint{}, nil
	}
	f := Footprint{Window: win, mask: make([]bool, win.Len())}

	for r := 0; r < win.Height; r++ {
		for c := 0; c < win.Width; c++ {
			center := meta.CellCenter(win.Row+r, win.Col+c)
			if (geom.Point{X: center.X, Y: center.Y}).Within(g) != geom.Outside {
				f.mask[r*win.Width+c] = true
			}
		}
	}

	for _, poly := range g.Polygons() {
		for _, ring := range poly {
			for i := range ring {
				a := ring[i]
				b := ring[(i+1)%len(ring)]
				f.burnSegment(meta, a, b)
			}
		}
	}

	for _, in := range f.mask {
		if in {
			f.cells++
		}
	}
	return f, nil
}

// burnSegment marks every cell of the window whose interior segment ab passes
// through. The segment is walked one grid column at a time; inside a column it
// spans a contiguous run of rows. Segments running along cell borders mark
// nothing.
func (f *Footprint) burnSegment(meta raster.Meta, a, b geom.Point) {
	t := meta.Transform
	colPos := func(x float64) float64 { return (x - t[0]) / t[1] }
	rowPos := func(y float64) float64 { return (t[3] - y) / -t[5] }
	// rows whose interior overlaps [yLo, yHi]
	rows := func(yLo, yHi float64) (int, int) {
		top := int(math.Floor(rowPos(yHi)))
		if yLo == yHi {
			if p := rowPos(yLo); p == math.Floor(p) {
				return 0, -1
			}
			return top, top
		}
		return top, int(math.Ceil(rowPos(yLo))) - 1
	}

	if a.X > b.X {
		a, b = b, a
	}
	if a.X == b.X {
		c := colPos(a.X)
		if c == math.Floor(c) {
			return
		}
		top, bottom := rows(math.Min(a.Y, b.Y), math.Max(a.Y, b.Y))
		f.markRun(int(math.Floor(c)), top, bottom)
		return
	}
	slope := (b.Y - a.Y) / (b.X - a.X)
	yAt := func(x float64) float64 { return a.Y + (x-a.X)*slope }

	first := max(int(math.Floor(colPos(a.X))), f.Window.Col)
	last := min(int(math.Ceil(colPos(b.X)))-1, f.Window.Col+f.Window.Width-1)
	for col := first; col <= last; col++ {
		x0 := math.Max(a.X, t[0]+float64(col)*t[1])
		x1 := math.Min(b.X, t[0]+float64(col+1)*t[1])
		if x0 >= x1 {
			continue
		}
		y0, y1 := yAt(x0), yAt(x1)
		top, bottom := rows(math.Min(y0, y1), math.Max(y0, y1))
		f.markRun(col, top, bottom)
	}
}

func (f *Footprint) markRun(col, rowTop, rowBottom int) {
	c := col - f.Window.Col
	if c < 0 || c >= f.Window.Width {
		return
	}
	rowTop = max(rowTop, f.Window.Row)
	rowBottom = min(rowBottom, f.Window.Row+f.Window.Height-1)
	for row := rowTop; row <= rowBottom; row++ {
		f.mask[(row-f.Window.Row)*f.Window.Width+c] = true
	}
}
