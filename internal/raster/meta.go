// Package raster describes single-band floating point grids and the block-wise
// I/O contract every grid store implements.
package raster

import (
	"fmt"
	"math"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// DefaultBlockSize is used when a store reports no internal tiling.
const DefaultBlockSize = 256

// Transform is an affine geotransform in GDAL order:
// originX, pixelWidth, rowRotation, originY, columnRotation, pixelHeight.
type Transform [6]float64

// Meta is the georeferencing and tiling of a single-band grid.
type Meta struct {
	Width       int
	Height      int
	BlockWidth  int
	BlockHeight int
	Transform   Transform
	CRS         string // WKT, compared verbatim
	NoData      float64
	HasNoData   bool
}

// Window is a rectangular block of cells.
type Window struct {
	Col    int
	Row    int
	Width  int
	Height int
}

// Len is the number of cells in w.
func (w Window) Len() int { return w.Width * w.Height }

// Empty reports whether w covers no cell.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

// OutputMeta derives the metadata of a float32 output grid from a template:
// same geometry and tiling, fixed nodata sentinel.
func OutputMeta(template Meta, nodata float64) Meta {
	out := template
	out.NoData = nodata
	out.HasNoData = true
	return out
}

// Compatible returns an error wrapping domain.ErrIncompatibleGrid unless m and o
// share shape, transform, and CRS exactly.
func (m Meta) Compatible(o Meta) error {
	if m.Width != o.Width || m.Height != o.Height {
		return fmt.Errorf("%w: shape %dx%d vs %dx%d", domain.ErrIncompatibleGrid, m.Width, m.Height, o.Width, o.Height)
	}
	if m.Transform != o.Transform {
		return fmt.Errorf("%w: transform %v vs %v", domain.ErrIncompatibleGrid, m.Transform, o.Transform)
	}
	if m.CRS != o.CRS {
		return fmt.Errorf("%w: reference system differs", domain.ErrIncompatibleGrid)
	}
	return nil
}

// IsNoData reports whether v is this grid's nodata value. Grids without an
// explicit nodata use fallback.
func (m Meta) IsNoData(v float32, fallback float64) bool {
	nd := fallback
	if m.HasNoData {
		nd = m.NoData
	}
	if math.IsNaN(nd) {
		return math.IsNaN(float64(v))
	}
	return v == float32(nd)
}

func (m Meta) blockSize() (int, int) {
	bw, bh := m.BlockWidth, m.BlockHeight
	if bw <= 0 {
		bw = DefaultBlockSize
	}
	if bh <= 0 {
		bh = DefaultBlockSize
	}
	return bw, bh
}

// Blocks returns the grid's block windows in row-major order, edge blocks clipped.
func (m Meta) Blocks() []Window {
	bw, bh := m.blockSize()
	var out []Window
	for row := 0; row < m.Height; row += bh {
		h := min(bh, m.Height-row)
		for col := 0; col < m.Width; col += bw {
			out = append(out, Window{Col: col, Row: row, Width: min(bw, m.Width-col), Height: h})
		}
	}
	return out
}

// NorthUp reports whether the transform has no rotation and rows run north to south.
func (m Meta) NorthUp() bool {
	t := m.Transform
	return t[2] == 0 && t[4] == 0 && t[1] > 0 && t[5] < 0
}

// Extent is the geographic bounding rectangle of a north-up grid.
func (m Meta) Extent() r2.Rect {
	t := m.Transform
	return r2.Rect{
		X: r1.Interval{Lo: t[0], Hi: t[0] + float64(m.Width)*t[1]},
		Y: r1.Interval{Lo: t[3] + float64(m.Height)*t[5], Hi: t[3]},
	}
}

// CellBounds is the geographic rectangle of cell (row, col) of a north-up grid.
func (m Meta) CellBounds(row, col int) r2.Rect {
	t := m.Transform
	x0 := t[0] + float64(col)*t[1]
	yTop := t[3] + float64(row)*t[5]
	return r2.Rect{
		X: r1.Interval{Lo: x0, Hi: x0 + t[1]},
		Y: r1.Interval{Lo: yTop + t[5], Hi: yTop},
	}
}

// CellCenter is the geographic center of cell (row, col) of a north-up grid.
func (m Meta) CellCenter(row, col int) r2.Point {
	t := m.Transform
	return r2.Point{
		X: t[0] + (float64(col)+0.5)*t[1],
		Y: t[3] + (float64(row)+0.5)*t[5],
	}
}

// WindowFor returns the cells of a north-up grid whose bounds may touch r,
// padded by one cell and clipped to the grid. ok is false when r does not
// reach the grid at all.
func (m Meta) WindowFor(r r2.Rect) (w Window, ok bool) {
	if r.IsEmpty() || !m.Extent().Intersects(r) {
		return Window{}, false
	}
	t := m.Transform
	colLo := int(math.Floor((r.X.Lo-t[0])/t[1])) - 1
	colHi := int(math.Ceil((r.X.Hi-t[0])/t[1])) + 1
	rowLo := int(math.Floor((t[3]-r.Y.Hi)/-t[5])) - 1
	rowHi := int(math.Ceil((t[3]-r.Y.Lo)/-t[5])) + 1

	colLo, colHi = max(colLo, 0), min(colHi, m.Width)
	rowLo, rowHi = max(rowLo, 0), min(rowHi, m.Height)
	w = Window{Col: colLo, Row: rowLo, Width: colHi - colLo, Height: rowHi - rowLo}
	return w, !w.Empty()
}

// Whole is the window covering the full grid.
func (m Meta) Whole() Window {
	return Window{Width: m.Width, Height: m.Height}
}
