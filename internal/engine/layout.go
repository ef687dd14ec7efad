// Package engine derives the per-pixel grids of a run: deltas, Z-scores, and
// the composite index. Every engine streams its inputs block by block and
// writes outputs through a raster.Store.
package engine

import (
	"path/filepath"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
)

// Layout names the derived grids of a run inside one output directory.
type Layout struct {
	Dir string
	Ext string // e.g. ".tif"
}

func (l Layout) path(stem string) string { return filepath.Join(l.Dir, stem+l.Ext) }

func (l Layout) Delta(v domain.Variable) string { return l.path(domain.DeltaFileStem(v)) }
func (l Layout) Z(v domain.Variable) string     { return l.path(domain.ZFileStem(v)) }
func (l Layout) Mean(v domain.Variable) string  { return l.path(domain.MeanFileStem(v)) }
func (l Layout) Std(v domain.Variable) string   { return l.path(domain.StdFileStem(v)) }
func (l Layout) Composite() string              { return l.path(domain.CompositeFileStem) }
