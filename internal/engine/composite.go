package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
)

// CompositeResult describes the written composite grid.
type CompositeResult struct {
	Path       string
	Inputs     []domain.Variable
	ValidCells int64
}

// Composite sums Z grids into the composite index grid.
type Composite struct {
	store  raster.Store
	nodata float64
	point  domain.InversionPoint
	logger *slog.Logger
}

// NewComposite creates a Composite engine. point decides whether inverted
// variables are negated here (AtAggregation) or were already negated in their
// delta grid (AtDelta).
func NewComposite(store raster.Store, nodata float64, point domain.InversionPoint, logger *slog.Logger) *Composite {
	return &Composite{store: store, nodata: nodata, point: point, logger: logger}
}

// Aggregate writes the signed sum of inputs to outPath. A cell is valid only
// when every input cell is valid. All inputs must be compatible grids.
func (c *Composite) Aggregate(ctx context.Context, inputs []ZResult, outPath string) (CompositeResult, error) {
	if len(inputs) == 0 {
		return CompositeResult{}, errors.New("composite needs at least one z grid")
	}

	readers := make([]raster.Reader, 0, len(inputs))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	signs := make([]float32, len(inputs))
	vars := make([]domain.Variable, len(inputs))
	for i, in := range inputs {
		r, err := c.store.Open(in.Path)
		if err != nil {
			return CompositeResult{}, fmt.Errorf("composite input %s: %w", in.Variable.Name, err)
		}
		readers = append(readers, r)
		if i > 0 {
			if err := readers[0].Meta().Compatible(r.Meta()); err != nil {
				return CompositeResult{}, fmt.Errorf("composite input %s: %w", in.Variable.Name, err)
			}
		}
		signs[i] = float32(in.Variable.AggregationSign(c.point))
		vars[i] = in.Variable
	}

	meta := raster.OutputMeta(readers[0].Meta(), c.nodata)
	var count int64
	err := raster.WriteGrid(c.store, outPath, meta, func(w raster.Writer) error {
		blocks := make([][]float32, len(readers))
		metas := make([]raster.Meta, len(readers))
		for i, r := range readers {
			metas[i] = r.Meta()
		}
		for _, b := range meta.Blocks() {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i, r := range readers {
				data, err := r.Read(b)
				if err != nil {
					return err
				}
				blocks[i] = data
			}
			sum, n := CompositeBlock(blocks, metas, signs, c.nodata)
			count += n
			if err := w.Write(b, sum); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CompositeResult{}, fmt.Errorf("composite: %w", err)
	}

	c.logger.Info("composite grid written",
		"path", outPath,
		"inputs", len(inputs),
		"inversion_point", c.point.String(),
		"valid_cells", count,
	)
	return CompositeResult{Path: outPath, Inputs: vars, ValidCells: count}, nil
}

// CompositeBlock sums signs[i]*blocks[i] cell by cell. A cell is nodata when
// any input cell is nodata or the sum is not finite.
func CompositeBlock(blocks [][]float32, metas []raster.Meta, signs []float32, nodata float64) ([]float32, int64) {
	out := make([]float32, len(blocks[0]))
	var count int64
cells:
	for j := range out {
		out[j] = float32(nodata)
		var sum float32
		for i, blk := range blocks {
			if !valid(metas[i], blk[j], nodata) {
				continue cells
			}
			sum += signs[i] * blk[j]
		}
		if !finite32(sum) {
			continue
		}
		out[j] = sum
		count++
	}
	return out, count
}
