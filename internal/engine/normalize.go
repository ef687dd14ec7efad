package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/stats"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/zonal"
)

// ZResult is the outcome of normalizing one delta grid. Err is set when this
// variable failed and no Z grid was written for it.
type ZResult struct {
	Variable   domain.Variable
	Path       string
	ValidCells int64
	Err        error
}

// Normalization is the outcome of a Normalize call.
type Normalization struct {
	Mode     domain.NormalizationMode
	Baseline *domain.Baseline // Global mode only
	Grids    []ZResult

	// DegenerateZones counts (variable, zone) pairs with zero variance or no
	// valid overlap in PerZone mode.
	DegenerateZones int
}

// Succeeded returns the results that produced a Z grid.
func (n Normalization) Succeeded() []ZResult {
	var out []ZResult
	for _, g := range n.Grids {
		if g.Err == nil {
			out = append(out, g)
		}
	}
	return out
}

// Normalizer rescales delta grids into Z-score grids.
type Normalizer struct {
	store  raster.Store
	layout Layout
	nodata float64
	mode   domain.NormalizationMode
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer writing grids named by layout.
func NewNormalizer(store raster.Store, layout Layout, nodata float64, mode domain.NormalizationMode, logger *slog.Logger) *Normalizer {
	return &Normalizer{store: store, layout: layout, nodata: nodata, mode: mode, logger: logger}
}

// Normalize writes one Z grid per delta. In Global mode every delta is scanned
// before any Z grid is written. zones are the normalization zones of PerZone
// mode and are ignored in Global mode.
//
// The returned error is non-nil only when the whole run must stop; failures of
// a single variable are reported in its ZResult.
func (n *Normalizer) Normalize(ctx context.Context, deltas []DeltaResult, zones []zonal.Zone) (Normalization, error) {
	switch n.mode {
	case domain.Global:
		return n.global(ctx, deltas)
	case domain.PerZone:
		return n.perZone(ctx, deltas, zones)
	default:
		return Normalization{}, fmt.Errorf("unsupported normalization mode %v", n.mode)
	}
}

func (n *Normalizer) global(ctx context.Context, deltas []DeltaResult) (Normalization, error) {
	res := Normalization{Mode: domain.Global}
	var pool stats.Moments
	pooled := make([]DeltaResult, 0, len(deltas))

	for _, d := range deltas {
		m, err := n.scan(ctx, d.Path)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Grids = append(res.Grids, ZResult{Variable: d.Variable, Err: fmt.Errorf("pool %s: %w", d.Variable.Name, err)})
			continue
		}
		n.logger.Debug("delta pooled", "variable", d.Variable.Name, "count", m.Count(), "mean", m.Mean())
		pool.Merge(m)
		pooled = append(pooled, d)
	}

	if pool.Count() == 0 {
		return res, domain.ErrEmptyPool
	}
	baseline := domain.Baseline{Mean: pool.Mean(), Std: pool.PopStdDev(), Count: pool.Count()}
	if baseline.Std == 0 {
		return res, fmt.Errorf("%w (mean %g over %d cells)", domain.ErrZeroVariance, baseline.Mean, baseline.Count)
	}
	res.Baseline = &baseline
	n.logger.Info("global baseline computed",
		"mean", baseline.Mean,
		"std", baseline.Std,
		"cells", baseline.Count,
		"variables", len(pooled),
	)

	for _, d := range pooled {
		out := n.layout.Z(d.Variable)
		valid, err := n.writeGlobalZ(ctx, d, out, baseline)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Grids = append(res.Grids, ZResult{Variable: d.Variable, Err: err})
			continue
		}
		n.logger.Info("z grid written", "variable", d.Variable.Name, "path", out, "valid_cells", valid)
		res.Grids = append(res.Grids, ZResult{Variable: d.Variable, Path: out, ValidCells: valid})
	}
	return res, nil
}

// scan accumulates the moments of the valid cells of a delta grid.
func (n *Normalizer) scan(ctx context.Context, path string) (stats.Moments, error) {
	var m stats.Moments
	r, err := n.store.Open(path)
	if err != nil {
		return m, err
	}
	defer r.Close()
	meta := r.Meta()
	for _, b := range meta.Blocks() {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		data, err := r.Read(b)
		if err != nil {
			return m, err
		}
		for _, v := range data {
			if valid(meta, v, n.nodata) {
				m.Add(float64(v))
			}
		}
	}
	return m, nil
}

func (n *Normalizer) writeGlobalZ(ctx context.Context, d DeltaResult, out string, b domain.Baseline) (int64, error) {
	r, err := n.store.Open(d.Path)
	if err != nil {
		return 0, fmt.Errorf("z %s: %w", d.Variable.Name, err)
	}
	defer r.Close()

	meta := raster.OutputMeta(r.Meta(), n.nodata)
	var count int64
	err = raster.WriteGrid(n.store, out, meta, func(w raster.Writer) error {
		for _, blk := range meta.Blocks() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := r.Read(blk)
			if err != nil {
				return err
			}
			z, c := GlobalZBlock(data, r.Meta(), n.nodata, b.Mean, b.Std)
			count += c
			if err := w.Write(blk, z); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("z %s: %w", d.Variable.Name, err)
	}
	return count, nil
}

// GlobalZBlock computes (d-mean)/std for every valid delta cell.
func GlobalZBlock(delta []float32, meta raster.Meta, nodata, mean, std float64) ([]float32, int64) {
	out := make([]float32, len(delta))
	var count int64
	for i, d := range delta {
		out[i] = float32(nodata)
		if !valid(meta, d, nodata) {
			continue
		}
		z := (float64(d) - mean) / std
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		out[i] = float32(z)
		count++
	}
	return out, count
}

func (n *Normalizer) perZone(ctx context.Context, deltas []DeltaResult, zones []zonal.Zone) (Normalization, error) {
	res := Normalization{Mode: domain.PerZone}
	if len(zones) == 0 {
		return res, errors.New("per-zone normalization needs at least one zone")
	}
	idx := zonal.NewIndex(zones)

	for _, d := range deltas {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		zr, degenerate, err := n.normalizeByZone(ctx, d, zones, idx)
		res.DegenerateZones += degenerate
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Grids = append(res.Grids, ZResult{Variable: d.Variable, Err: err})
			continue
		}
		res.Grids = append(res.Grids, zr)
	}
	return res, nil
}

func (n *Normalizer) normalizeByZone(ctx context.Context, d DeltaResult, zones []zonal.Zone, idx *zonal.Index) (ZResult, int, error) {
	v := d.Variable
	session, err := zonal.OpenSession(n.store, []zonal.Grid{{Name: v.DeltaGridName(), Path: d.Path}}, n.nodata)
	if err != nil {
		return ZResult{}, 0, fmt.Errorf("zone baseline %s: %w", v.Name, err)
	}
	meta := raster.OutputMeta(session.Meta(), n.nodata)

	means := make([]float64, len(zones))
	stds := make([]float64, len(zones))
	degenerate := 0
	for i, z := range zones {
		mean, std, count, err := session.MeanStd(z, v.DeltaGridName())
		if err != nil {
			session.Close()
			return ZResult{}, degenerate, fmt.Errorf("zone baseline %s, zone %s: %w", v.Name, z, err)
		}
		switch {
		case count == 0:
			degenerate++
			n.logger.Warn("zone has no valid delta cells",
				"variable", v.Name, "zone", z.Name, "error", domain.ErrDegenerateZone)
		case std == 0:
			degenerate++
			std = n.nodata
			n.logger.Warn("zone delta has zero standard deviation, using nodata",
				"variable", v.Name, "zone", z.Name, "mean", mean, "error", domain.ErrDegenerateZone)
		}
		means[i], stds[i] = mean, std
	}
	if err := session.Close(); err != nil {
		return ZResult{}, degenerate, err
	}

	meanPath, stdPath := n.layout.Mean(v), n.layout.Std(v)
	err = raster.WriteGrid(n.store, meanPath, meta, func(mw raster.Writer) error {
		return raster.WriteGrid(n.store, stdPath, meta, func(sw raster.Writer) error {
			return zonal.Burn(idx, n.nodata,
				zonal.Layer{Writer: mw, Value: func(i int) float64 { return means[i] }},
				zonal.Layer{Writer: sw, Value: func(i int) float64 { return stds[i] }},
			)
		})
	})
	if err != nil {
		return ZResult{}, degenerate, fmt.Errorf("zone baseline grids %s: %w", v.Name, err)
	}

	out := n.layout.Z(v)
	count, err := n.writeZonalZ(ctx, d.Path, meanPath, stdPath, out, meta)
	if err != nil {
		return ZResult{}, degenerate, fmt.Errorf("z %s: %w", v.Name, err)
	}
	n.logger.Info("z grid written",
		"variable", v.Name,
		"path", out,
		"valid_cells", count,
		"zones", len(zones),
		"degenerate_zones", degenerate,
	)
	return ZResult{Variable: v, Path: out, ValidCells: count}, degenerate, nil
}

func (n *Normalizer) writeZonalZ(ctx context.Context, deltaPath, meanPath, stdPath, out string, meta raster.Meta) (int64, error) {
	var readers []raster.Reader
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	for _, p := range []string{deltaPath, meanPath, stdPath} {
		r, err := n.store.Open(p)
		if err != nil {
			return 0, err
		}
		readers = append(readers, r)
		if err := meta.Compatible(r.Meta()); err != nil {
			return 0, err
		}
	}

	var count int64
	err := raster.WriteGrid(n.store, out, meta, func(w raster.Writer) error {
		for _, b := range meta.Blocks() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var blocks [3][]float32
			for i, r := range readers {
				data, err := r.Read(b)
				if err != nil {
					return err
				}
				blocks[i] = data
			}
			z, c := ZoneZBlock(blocks[0], blocks[1], blocks[2], readers[0].Meta(), n.nodata)
			count += c
			if err := w.Write(b, z); err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

// ZoneZBlock computes (d-m)/s per cell from rasterized zone means and standard
// deviations. A cell is nodata when any input is nodata or s is zero.
func ZoneZBlock(delta, mean, std []float32, deltaMeta raster.Meta, nodata float64) ([]float32, int64) {
	out := make([]float32, len(delta))
	sentinel := float32(nodata)
	var count int64
	for i := range delta {
		out[i] = sentinel
		d, m, s := delta[i], mean[i], std[i]
		if !valid(deltaMeta, d, nodata) || m == sentinel || s == sentinel || s == 0 || !finite32(m) || !finite32(s) {
			continue
		}
		z := (float64(d) - float64(m)) / float64(s)
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		out[i] = float32(z)
		count++
	}
	return out, count
}

// valid reports whether v is a usable value of a derived grid.
func valid(meta raster.Meta, v float32, nodata float64) bool {
	return !meta.IsNoData(v, nodata) && v != float32(nodata) && finite32(v)
}
