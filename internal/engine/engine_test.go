package engine_test

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/engine"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodata = -9999

var layout = engine.Layout{Dir: "out", Ext: ".tif"}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// 4x3 grid of unit cells covering x in [0,4], y in [0,3], tiled in 2x2 blocks.
func gridMeta() raster.Meta {
	return raster.Meta{
		Width: 4, Height: 3,
		BlockWidth: 2, BlockHeight: 2,
		Transform: raster.Transform{0, 1, 0, 3, 0, -1},
		CRS:       "EPSG:4326",
		NoData:    nodata, HasNoData: true,
	}
}

func put(t *testing.T, store *raster.MemStore, path string, meta raster.Meta, data []float32) {
	t.Helper()
	require.NoError(t, store.Put(path, meta, data))
}

func get(t *testing.T, store *raster.MemStore, path string) []float32 {
	t.Helper()
	_, data, ok := store.Get(path)
	require.True(t, ok, "grid %s not written", path)
	return data
}

func variable(name string, invert bool) domain.Variable {
	return domain.Variable{
		Key:      "bio" + name,
		Name:     "BIO" + name,
		Group:    domain.GroupThermal,
		Invert:   invert,
		HistPath: "bio" + name + "_his.tif",
		FutPath:  "bio" + name + "_fut.tif",
	}
}

func fill(v float32) []float32 {
	out := make([]float32, 12)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDelta_Example(t *testing.T) {
	store := raster.NewMemStore()
	v := variable("1", false)
	put(t, store, v.HistPath, gridMeta(), fill(20.0))
	put(t, store, v.FutPath, gridMeta(), fill(22.5))

	d := engine.NewDelta(store, nodata, domain.AtDelta, discardLogger())
	res, err := d.Compute(context.Background(), v, layout.Delta(v))
	require.NoError(t, err)

	assert.Equal(t, int64(12), res.ValidCells)
	assert.Equal(t, "out/DELTA_BIO1.tif", res.Path)
	for _, got := range get(t, store, res.Path) {
		assert.Equal(t, float32(2.5), got)
	}

	meta, _, _ := store.Get(res.Path)
	require.NoError(t, meta.Compatible(gridMeta()))
	assert.Equal(t, float64(nodata), meta.NoData)
}

func TestDelta_NoDataPropagation(t *testing.T) {
	store := raster.NewMemStore()
	v := variable("5", false)

	histMeta := gridMeta()
	futMeta := gridMeta()
	futMeta.NoData = -3.4e38

	hist := fill(10)
	fut := fill(11)
	hist[0] = nodata
	fut[1] = -3.4e38
	fut[2] = float32(math.Inf(1))
	hist[3] = float32(math.NaN())
	put(t, store, v.HistPath, histMeta, hist)
	put(t, store, v.FutPath, futMeta, fut)

	res, err := engine.NewDelta(store, nodata, domain.AtDelta, discardLogger()).Compute(context.Background(), v, layout.Delta(v))
	require.NoError(t, err)

	got := get(t, store, res.Path)
	for i := 0; i < 4; i++ {
		assert.Equal(t, float32(nodata), got[i], "cell %d", i)
	}
	for i := 4; i < 12; i++ {
		assert.Equal(t, float32(1), got[i], "cell %d", i)
	}
	assert.Equal(t, int64(8), res.ValidCells)
}

func TestDelta_InvertIsAntiSymmetric(t *testing.T) {
	store := raster.NewMemStore()
	plain := variable("14", false)
	inverted := plain
	inverted.Invert = true

	hist := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, nodata}
	fut := []float32{3, 1, 3, 9, 0, 6.5, 2, 8, 12, -1, 30, 5}
	put(t, store, plain.HistPath, gridMeta(), hist)
	put(t, store, plain.FutPath, gridMeta(), fut)

	ctx := context.Background()
	atDelta := engine.NewDelta(store, nodata, domain.AtDelta, discardLogger())
	_, err := atDelta.Compute(ctx, plain, "plain.tif")
	require.NoError(t, err)
	_, err = atDelta.Compute(ctx, inverted, "inverted.tif")
	require.NoError(t, err)

	a, b := get(t, store, "plain.tif"), get(t, store, "inverted.tif")
	for i := range a {
		if a[i] == nodata {
			assert.Equal(t, float32(nodata), b[i], "sentinel is never negated")
			continue
		}
		assert.Equal(t, -a[i], b[i], "cell %d", i)
	}

	atAgg := engine.NewDelta(store, nodata, domain.AtAggregation, discardLogger())
	_, err = atAgg.Compute(ctx, inverted, "raw.tif")
	require.NoError(t, err)
	assert.Equal(t, a, get(t, store, "raw.tif"), "inversion deferred to aggregation")
}

func TestDelta_MissingSource(t *testing.T) {
	store := raster.NewMemStore()
	v := variable("1", false)
	put(t, store, v.HistPath, gridMeta(), fill(1))

	_, err := engine.NewDelta(store, nodata, domain.AtDelta, discardLogger()).Compute(context.Background(), v, layout.Delta(v))
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.False(t, domain.IsFatal(err))
	assert.Equal(t, []string{v.HistPath}, store.Paths(), "no output grid")
}

func TestDelta_IncompatibleGrids(t *testing.T) {
	store := raster.NewMemStore()
	v := variable("1", false)
	shifted := gridMeta()
	shifted.Transform[0] = 0.5
	put(t, store, v.HistPath, gridMeta(), fill(1))
	put(t, store, v.FutPath, shifted, fill(2))

	_, err := engine.NewDelta(store, nodata, domain.AtDelta, discardLogger()).Compute(context.Background(), v, layout.Delta(v))
	require.ErrorIs(t, err, domain.ErrIncompatibleGrid)
	_, _, ok := store.Get(layout.Delta(v))
	assert.False(t, ok)
}

func TestDelta_CancelledContextLeavesNoGrid(t *testing.T) {
	store := raster.NewMemStore()
	v := variable("1", false)
	put(t, store, v.HistPath, gridMeta(), fill(1))
	put(t, store, v.FutPath, gridMeta(), fill(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.NewDelta(store, nodata, domain.AtDelta, discardLogger()).Compute(ctx, v, layout.Delta(v))
	require.ErrorIs(t, err, context.Canceled)
	_, _, ok := store.Get(layout.Delta(v))
	assert.False(t, ok)
}

func TestDeltaBlock_FallbackNoData(t *testing.T) {
	m := gridMeta()
	m.HasNoData = false
	out, n := engine.DeltaBlock([]float32{nodata, 1}, []float32{1, 3}, m, m, nodata, 1)
	assert.Equal(t, []float32{nodata, 2}, out)
	assert.Equal(t, int64(1), n)
}
