// Package zonal computes statistics of grids restricted to polygon footprints
// and burns per-zone values back into grids.
package zonal

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// Zone is one named administrative polygon.
type Zone struct {
	Dataset  string
	Country  string
	Level    string
	Name     string
	Index    int
	Geometry geom.Polygonal
}

func (z Zone) String() string {
	return fmt.Sprintf("%s/%s#%d", z.Dataset, z.Name, z.Index)
}

// Rect is the bounding rectangle of z, empty when z has no geometry.
func (z Zone) Rect() r2.Rect {
	if z.Geometry == nil {
		return r2.EmptyRect()
	}
	b := z.Geometry.Bounds()
	if b == nil {
		return r2.EmptyRect()
	}
	return r2.Rect{
		X: r1.Interval{Lo: b.Min.X, Hi: b.Max.X},
		Y: r1.Interval{Lo: b.Min.Y, Hi: b.Max.Y},
	}
}
