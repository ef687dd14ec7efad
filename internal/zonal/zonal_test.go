package zonal_test

import (
	"math"
	"testing"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/zonal"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const nodata = -9999

// 10x6 grid of unit cells covering x in [0,10], y in [0,6].
func gridMeta() raster.Meta {
	return raster.Meta{
		Width: 10, Height: 6,
		BlockWidth: 4, BlockHeight: 4,
		Transform: raster.Transform{0, 1, 0, 6, 0, -1},
		CRS:       "EPSG:4326",
		NoData:    nodata, HasNoData: true,
	}
}

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}}
}

func newStore(t *testing.T) (*raster.MemStore, []float32) {
	t.Helper()
	m := gridMeta()
	data := make([]float32, m.Width*m.Height)
	for i := range data {
		data[i] = float32(i)
	}
	data[0] = nodata
	store := raster.NewMemStore()
	require.NoError(t, store.Put("z_bio1", m, data))
	return store, data
}

func openSession(t *testing.T, store raster.Store) *zonal.Session {
	t.Helper()
	s, err := zonal.OpenSession(store, []zonal.Grid{{Name: "z_bio1", Path: "z_bio1"}}, nodata)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSummarize_FullExtentMatchesWholeGrid(t *testing.T) {
	store, data := newStore(t)
	s := openSession(t, store)

	var valid []float64
	for _, v := range data {
		if v != nodata {
			valid = append(valid, float64(v))
		}
	}

	got, err := s.Summarize(zonal.Zone{Name: "All", Geometry: rect(0, 0, 10, 6)})
	require.NoError(t, err)
	st := got["z_bio1"]
	assert.InDelta(t, stat.Mean(valid, nil), st.Mean, 1e-9)
	assert.Equal(t, floats.Min(valid), st.Min)
	assert.Equal(t, floats.Max(valid), st.Max)
	assert.Equal(t, len(valid), st.Count)
}

func TestSummarize_OutsideExtentIsNaN(t *testing.T) {
	store, _ := newStore(t)
	s := openSession(t, store)

	got, err := s.Summarize(zonal.Zone{Name: "Far", Geometry: rect(50, 50, 60, 60)})
	require.NoError(t, err)
	st := got["z_bio1"]
	assert.True(t, math.IsNaN(st.Mean))
	assert.True(t, math.IsNaN(st.Min))
	assert.True(t, math.IsNaN(st.Max))
	assert.Zero(t, st.Count)
}

func TestSummarize_AllNoDataOverlapIsNaN(t *testing.T) {
	store, _ := newStore(t)
	s := openSession(t, store)

	// Inside cell (row 0, col 0) only, which holds nodata.
	got, err := s.Summarize(zonal.Zone{Geometry: rect(0.2, 5.2, 0.8, 5.8)})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got["z_bio1"].Mean))
}

func TestFootprint_AllTouched(t *testing.T) {
	m := gridMeta()

	// A thin strip through row 3 that contains no cell center.
	fp, err := zonal.NewFootprint(m, rect(0.2, 2.4, 3.8, 2.45))
	require.NoError(t, err)
	assert.Equal(t, 4, fp.Cells())
	for col := 0; col < 4; col++ {
		assert.True(t, fp.Contains(3, col), "col %d", col)
	}
	assert.False(t, fp.Contains(3, 4))
	assert.False(t, fp.Contains(2, 1))

	// A small square around one cell center.
	fp, err = zonal.NewFootprint(m, rect(2.2, 2.2, 2.8, 2.8))
	require.NoError(t, err)
	assert.Equal(t, 1, fp.Cells())
	assert.True(t, fp.Contains(3, 2))
}

func TestFootprint_DiagonalEdge(t *testing.T) {
	m := gridMeta()
	tri := geom.Polygon{{{X: 0, Y: 0}, {X: 10, Y: 6}, {X: 10, Y: 0}}}

	fp, err := zonal.NewFootprint(m, tri)
	require.NoError(t, err)
	// Cells crossed by the hypotenuse count even when their center is outside.
	assert.True(t, fp.Contains(0, 9))
	assert.True(t, fp.Contains(5, 0))
	assert.False(t, fp.Contains(0, 0))
	assert.Greater(t, fp.Cells(), 31)
}

func TestFootprint_EdgesOnCellBordersAddNothing(t *testing.T) {
	fp, err := zonal.NewFootprint(gridMeta(), rect(2, 1, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, 4, fp.Cells())
	assert.True(t, fp.Contains(3, 2))
	assert.True(t, fp.Contains(4, 3))
	assert.False(t, fp.Contains(3, 4))
	assert.False(t, fp.Contains(2, 2))
}

func TestFootprint_RotatedGrid(t *testing.T) {
	m := gridMeta()
	m.Transform[2] = 0.1
	_, err := zonal.NewFootprint(m, rect(0, 0, 1, 1))
	assert.ErrorIs(t, err, zonal.ErrRotatedGrid)
}

func TestMeanStd(t *testing.T) {
	m := gridMeta()
	store := raster.NewMemStore()
	data := make([]float32, m.Width*m.Height)
	for i := range data {
		data[i] = 3
	}
	require.NoError(t, store.Put("d", m, data))
	s, err := zonal.OpenSession(store, []zonal.Grid{{Name: "d", Path: "d"}}, nodata)
	require.NoError(t, err)
	defer s.Close()

	mean, std, n, err := s.MeanStd(zonal.Zone{Geometry: rect(1, 1, 3, 3)}, "d")
	require.NoError(t, err)
	assert.Equal(t, 3.0, mean)
	assert.Equal(t, 0.0, std)
	assert.Positive(t, n)

	mean, std, n, err = s.MeanStd(zonal.Zone{Geometry: rect(20, 20, 30, 30)}, "d")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(mean))
	assert.True(t, math.IsNaN(std))
	assert.Zero(t, n)
}

func TestOpenSession_Incompatible(t *testing.T) {
	store, _ := newStore(t)
	other := gridMeta()
	other.Width = 5
	require.NoError(t, store.Put("small", other, make([]float32, other.Width*other.Height)))

	_, err := zonal.OpenSession(store, []zonal.Grid{{Name: "a", Path: "z_bio1"}, {Name: "b", Path: "small"}}, nodata)
	assert.Error(t, err)
}

func TestIndex_LastZoneWins(t *testing.T) {
	idx := zonal.NewIndex([]zonal.Zone{
		{Name: "A", Geometry: rect(0, 0, 6, 6)},
		{Name: "B", Geometry: rect(4, 0, 10, 6)},
	})

	pos, ok := idx.Locate(geom.Point{X: 5, Y: 3})
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	pos, ok = idx.Locate(geom.Point{X: 1, Y: 3})
	require.True(t, ok)
	assert.Equal(t, 0, pos)

	_, ok = idx.Locate(geom.Point{X: 50, Y: 3})
	assert.False(t, ok)
}

func TestBurn(t *testing.T) {
	m := raster.OutputMeta(gridMeta(), nodata)
	store := raster.NewMemStore()
	zones := []zonal.Zone{
		{Geometry: rect(0, 0, 5, 6)},
		{Geometry: rect(5, 0, 8, 6)},
	}
	means := []float64{1.5, math.NaN()}
	stds := []float64{2, 4}

	mw, err := store.Create("MEAN", m)
	require.NoError(t, err)
	sw, err := store.Create("STD", m)
	require.NoError(t, err)

	err = zonal.Burn(zonal.NewIndex(zones), nodata,
		zonal.Layer{Writer: mw, Value: func(i int) float64 { return means[i] }},
		zonal.Layer{Writer: sw, Value: func(i int) float64 { return stds[i] }},
	)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	require.NoError(t, sw.Close())

	_, mean, _ := store.Get("MEAN")
	_, std, _ := store.Get("STD")
	row := 2 * m.Width
	assert.Equal(t, float32(1.5), mean[row+0])
	assert.Equal(t, float32(nodata), mean[row+6], "NaN zone value burns nodata")
	assert.Equal(t, float32(4), std[row+6])
	assert.Equal(t, float32(nodata), std[row+9], "cells outside every zone")
}
