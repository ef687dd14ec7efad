package zonal

import (
	"math"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

type indexedZone struct {
	geom.Polygonal
	pos int
}

// pointPad widens point queries so zones whose bounds end exactly at the point
// are still candidates.
const pointPad = 1e-9

// Index answers which zone covers a point. When zones overlap, the zone that
// comes last in the input order wins.
type Index struct {
	tree *rtree.Rtree
}

// NewIndex builds a spatial index over zones. Zones without geometry are skipped.
func NewIndex(zones []Zone) *Index {
	tree := rtree.NewTree(25, 50)
	for i, z := range zones {
		if z.Geometry == nil {
			continue
		}
		tree.Insert(&indexedZone{Polygonal: z.Geometry, pos: i})
	}
	return &Index{tree: tree}
}

// Locate returns the position of the last zone containing p.
func (idx *Index) Locate(p geom.Point) (int, bool) {
	best := -1
	query := &geom.Bounds{
		Min: geom.Point{X: p.X - pointPad, Y: p.Y - pointPad},
		Max: geom.Point{X: p.X + pointPad, Y: p.Y + pointPad},
	}
	for _, hit := range idx.tree.SearchIntersect(query) {
		z := hit.(*indexedZone)
		if z.pos <= best {
			continue
		}
		if p.Within(z.Polygonal) != geom.Outside {
			best = z.pos
		}
	}
	return best, best >= 0
}

// Layer is one grid burned by Burn.
type Layer struct {
	Writer raster.Writer
	Value  func(zone int) float64
}

// Burn writes one value per cell into every layer: the layer's value for the
// zone containing the cell center, or nodata when no zone does or the value is
// not finite. All layers share the zone lookup and are written block by block.
func Burn(idx *Index, nodata float64, layers ...Layer) error {
	if len(layers) == 0 {
		return nil
	}
	meta := layers[0].Writer.Meta()
	for _, l := range layers[1:] {
		if err := meta.Compatible(l.Writer.Meta()); err != nil {
			return err
		}
	}
	if !meta.NorthUp() {
		return ErrRotatedGrid
	}

	for _, b := range meta.Blocks() {
		owner := make([]int, b.Len())
		for r := 0; r < b.Height; r++ {
			for c := 0; c < b.Width; c++ {
				center := meta.CellCenter(b.Row+r, b.Col+c)
				pos, ok := idx.Locate(geom.Point{X: center.X, Y: center.Y})
				if !ok {
					pos = -1
				}
				owner[r*b.Width+c] = pos
			}
		}
		for _, l := range layers {
			block := make([]float32, b.Len())
			for i, pos := range owner {
				block[i] = float32(nodata)
				if pos < 0 {
					continue
				}
				v := l.Value(pos)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				block[i] = float32(v)
			}
			if err := l.Writer.Write(b, block); err != nil {
				return err
			}
		}
	}
	return nil
}
