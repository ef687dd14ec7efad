package zonal

import (
	"errors"
	"fmt"
	"math"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Grid names a grid taking part in a zonal session.
type Grid struct {
	Name string
	Path string
}

// Session holds a set of mutually compatible grids open while many zones are
// summarized against them.
type Session struct {
	meta    raster.Meta
	nodata  float64
	names   []string
	readers map[string]raster.Reader
}

// OpenSession opens every grid in grids. All grids must share shape, transform,
// and CRS. nodata is the sentinel assumed for grids without one.
func OpenSession(store raster.Store, grids []Grid, nodata float64) (*Session, error) {
	if len(grids) == 0 {
		return nil, errors.New("zonal session needs at least one grid")
	}
	s := &Session{nodata: nodata, readers: make(map[string]raster.Reader, len(grids))}
	for i, g := range grids {
		if _, dup := s.readers[g.Name]; dup {
			s.Close()
			return nil, fmt.Errorf("duplicate grid name %q", g.Name)
		}
		r, err := store.Open(g.Path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open grid %s: %w", g.Name, err)
		}
		if i == 0 {
			s.meta = r.Meta()
		} else if err := s.meta.Compatible(r.Meta()); err != nil {
			r.Close()
			s.Close()
			return nil, fmt.Errorf("grid %s: %w", g.Name, err)
		}
		s.names = append(s.names, g.Name)
		s.readers[g.Name] = r
	}
	if !s.meta.NorthUp() {
		s.Close()
		return nil, ErrRotatedGrid
	}
	return s, nil
}

// Meta is the shared metadata of the session's grids.
func (s *Session) Meta() raster.Meta { return s.meta }

// Names lists the grid names in the order they were opened.
func (s *Session) Names() []string { return append([]string(nil), s.names...) }

// Close releases every grid of the session.
func (s *Session) Close() error {
	var errs []error
	for _, r := range s.readers {
		errs = append(errs, r.Close())
	}
	s.readers = nil
	return errors.Join(errs...)
}

// Footprint computes z's footprint on the session grids.
func (s *Session) Footprint(z Zone) (Footprint, error) {
	if z.Geometry == nil {
		return Footprint{}, nil
	}
	return NewFootprint(s.meta, z.Geometry)
}

// Values returns the valid cell values of grid inside fp.
func (s *Session) Values(fp Footprint, grid string) ([]float64, error) {
	r, ok := s.readers[grid]
	if !ok {
		return nil, fmt.Errorf("grid %q not in session", grid)
	}
	if fp.Empty() {
		return nil, nil
	}
	data, err := r.Read(fp.Window)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", grid, err)
	}
	meta := r.Meta()
	values := make([]float64, 0, fp.Cells())
	fp.Each(data, func(v float32) {
		if meta.IsNoData(v, s.nodata) || v == float32(s.nodata) {
			return
		}
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return
		}
		values = append(values, f)
	})
	return values, nil
}

// Summarize returns the mean, min, and max of every session grid over z's
// all-touched footprint. Grids without valid cells in the footprint get NaN
// statistics.
func (s *Session) Summarize(z Zone) (map[string]domain.GridStat, error) {
	fp, err := s.Footprint(z)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.GridStat, len(s.names))
	for _, name := range s.names {
		values, err := s.Values(fp, name)
		if err != nil {
			return nil, err
		}
		out[name] = Summary(values)
	}
	return out, nil
}

// MeanStd returns the mean and population standard deviation of grid over z's
// footprint, and the number of valid cells. Both are NaN when n is 0.
func (s *Session) MeanStd(z Zone, grid string) (mean, std float64, n int, err error) {
	fp, err := s.Footprint(z)
	if err != nil {
		return 0, 0, 0, err
	}
	values, err := s.Values(fp, grid)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(values) == 0 {
		return math.NaN(), math.NaN(), 0, nil
	}
	mean, std = stat.PopMeanStdDev(values, nil)
	return mean, std, len(values), nil
}

// Summary summarizes a sample of valid values.
func Summary(values []float64) domain.GridStat {
	if len(values) == 0 {
		return domain.EmptyGridStat()
	}
	return domain.GridStat{
		Mean:  stat.Mean(values, nil),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Count: len(values),
	}
}

// Record builds the zone record of z with the statistics of every session grid.
// Indices are left for domain.DeriveIndices.
func (s *Session) Record(z Zone) (domain.ZoneRecord, error) {
	st, err := s.Summarize(z)
	if err != nil {
		return domain.ZoneRecord{}, err
	}
	return domain.ZoneRecord{
		Dataset:    z.Dataset,
		Country:    z.Country,
		AdminLevel: z.Level,
		Name:       z.Name,
		Index:      z.Index,
		Stats:      st,
	}, nil
}
