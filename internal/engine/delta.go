package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
)

// DeltaResult describes a written delta grid.
type DeltaResult struct {
	Variable   domain.Variable
	Path       string
	Meta       raster.Meta
	ValidCells int64
}

// Delta computes future minus historical grids.
type Delta struct {
	store  raster.Store
	nodata float64
	point  domain.InversionPoint
	logger *slog.Logger
}

// NewDelta creates a Delta engine. nodata is the output sentinel, also assumed
// for inputs that declare none.
func NewDelta(store raster.Store, nodata float64, point domain.InversionPoint, logger *slog.Logger) *Delta {
	return &Delta{store: store, nodata: nodata, point: point, logger: logger}
}

// Compute writes the delta grid of v to outPath. It fails with an error wrapping
// domain.ErrSourceUnavailable when an input is missing, and
// domain.ErrIncompatibleGrid when the inputs are not aligned.
func (d *Delta) Compute(ctx context.Context, v domain.Variable, outPath string) (DeltaResult, error) {
	hist, err := d.store.Open(v.HistPath)
	if err != nil {
		return DeltaResult{}, fmt.Errorf("historical %s: %w", v.Name, err)
	}
	defer hist.Close()

	fut, err := d.store.Open(v.FutPath)
	if err != nil {
		return DeltaResult{}, fmt.Errorf("future %s: %w", v.Name, err)
	}
	defer fut.Close()

	if err := hist.Meta().Compatible(fut.Meta()); err != nil {
		return DeltaResult{}, fmt.Errorf("delta %s: %w", v.Name, err)
	}

	meta := raster.OutputMeta(hist.Meta(), d.nodata)
	sign := v.DeltaSign(d.point)
	var valid int64

	err = raster.WriteGrid(d.store, outPath, meta, func(w raster.Writer) error {
		for _, b := range meta.Blocks() {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := hist.Read(b)
			if err != nil {
				return fmt.Errorf("read historical block: %w", err)
			}
			f, err := fut.Read(b)
			if err != nil {
				return fmt.Errorf("read future block: %w", err)
			}
			out, n := DeltaBlock(h, f, hist.Meta(), fut.Meta(), d.nodata, sign)
			valid += n
			if err := w.Write(b, out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return DeltaResult{}, fmt.Errorf("delta %s: %w", v.Name, err)
	}

	if valid == 0 {
		d.logger.Warn("delta grid has no valid cells", "variable", v.Name, "path", outPath)
	}
	d.logger.Info("delta grid written",
		"variable", v.Name,
		"path", outPath,
		"valid_cells", valid,
		"inverted", sign < 0,
	)
	return DeltaResult{Variable: v, Path: outPath, Meta: meta, ValidCells: valid}, nil
}

// DeltaBlock computes sign*(fut-hist) cell by cell. Cells where either input is
// nodata or the difference is not finite are set to nodata. It returns the
// output block and its number of valid cells.
func DeltaBlock(hist, fut []float32, histMeta, futMeta raster.Meta, nodata float64, sign float32) ([]float32, int64) {
	out := make([]float32, len(hist))
	var valid int64
	for i := range hist {
		out[i] = float32(nodata)
		if histMeta.IsNoData(hist[i], nodata) || futMeta.IsNoData(fut[i], nodata) {
			continue
		}
		diff := fut[i] - hist[i]
		if !finite32(diff) {
			continue
		}
		out[i] = sign * diff
		valid++
	}
	return out, valid
}

func finite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
