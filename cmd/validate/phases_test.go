package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/sqlite"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/engine"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/observability"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/zonal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noZones struct{}

func (noZones) LoadZones(context.Context, pipeline.ZoneSource) ([]zonal.Zone, error) {
	return nil, nil
}

func testPlan(point domain.InversionPoint) pipeline.Plan {
	return pipeline.Plan{
		Variables: []domain.Variable{
			{Key: "bio1", Name: "BIO1", Group: domain.GroupThermal, HistPath: "in/h1.tif", FutPath: "in/f1.tif"},
			{Key: "bio14", Name: "BIO14", Group: domain.GroupHydric, Invert: true, HistPath: "in/h14.tif", FutPath: "in/f14.tif"},
		},
		Mode:           domain.Global,
		InversionPoint: point,
		NoData:         -9999,
		Layout:         engine.Layout{Dir: "out", Ext: ".tif"},
	}
}

// finishedRun writes inputs to a MemStore and runs the pipeline over them.
func finishedRun(t *testing.T, plan pipeline.Plan) *raster.MemStore {
	t.Helper()
	meta := raster.Meta{
		Width: 3, Height: 2, BlockWidth: 2, BlockHeight: 2,
		Transform: raster.Transform{0, 1, 0, 2, 0, -1},
		NoData:    -9999, HasNoData: true,
	}
	store := raster.NewMemStore()
	require.NoError(t, store.Put("in/h1.tif", meta, []float32{10, 10, 10, 10, 10, -9999}))
	require.NoError(t, store.Put("in/f1.tif", meta, []float32{11, 12, 13, 14, 15, 16}))
	require.NoError(t, store.Put("in/h14.tif", meta, []float32{50, 50, 50, 50, 50, 50}))
	require.NoError(t, store.Put("in/f14.tif", meta, []float32{40, 45, 50, 30, 55, 60}))

	r := pipeline.New(plan, store, noZones{}, nil, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	return store
}

func assertAllPassed(t *testing.T, phases []*phase) {
	t.Helper()
	for _, p := range phases {
		assert.True(t, p.passed(), "%s: %v", p.name, p.errors)
	}
}

func TestPhases_PassOnFinishedRun(t *testing.T) {
	for _, point := range []domain.InversionPoint{domain.AtDelta, domain.AtAggregation} {
		t.Run(point.String(), func(t *testing.T) {
			plan := testPlan(point)
			store := finishedRun(t, plan)
			v := validator{store: store, plan: plan, tol: 1e-4}
			assertAllPassed(t, v.phases())
		})
	}
}

func TestPhases_DetectTamperedDelta(t *testing.T) {
	plan := testPlan(domain.AtDelta)
	store := finishedRun(t, plan)

	meta, data, ok := store.Get("out/DELTA_BIO1.tif")
	require.True(t, ok)
	data[0] += 0.5
	data[5] = 1 // was nodata
	require.NoError(t, store.Put("out/DELTA_BIO1.tif", meta, data))

	v := validator{store: store, plan: plan, tol: 1e-4}
	p := v.validateDeltas()
	require.False(t, p.passed())
	assert.Len(t, p.errors, 2)
}

func TestPhases_DetectTamperedComposite(t *testing.T) {
	plan := testPlan(domain.AtDelta)
	store := finishedRun(t, plan)

	meta, data, ok := store.Get("out/INDICE_IMPACTO_AGREGADO.tif")
	require.True(t, ok)
	data[1] = -9999
	require.NoError(t, store.Put("out/INDICE_IMPACTO_AGREGADO.tif", meta, data))

	v := validator{store: store, plan: plan, tol: 1e-4}
	assert.False(t, v.validateComposite().passed())
}

func TestPhases_MissingGrid(t *testing.T) {
	plan := testPlan(domain.AtDelta)
	v := validator{store: raster.NewMemStore(), plan: plan, tol: 1e-4}

	p := v.validateAlignment()
	assert.False(t, p.passed())
}

func TestPhases_PerZoneSkipsMoments(t *testing.T) {
	plan := testPlan(domain.AtDelta)
	plan.Mode = domain.PerZone
	v := validator{store: raster.NewMemStore(), plan: plan}

	p := v.validateZMoments()
	assert.NotEmpty(t, p.skipped)
	assert.True(t, p.passed())
}

func TestValidateStoredRanking(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "r.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer db.Close()

	assert.NotEmpty(t, validateStoredRanking(ctx, db).skipped)

	zone := func(name string, c float64, rank int) domain.ZoneRecord {
		return domain.ZoneRecord{Dataset: "D", Country: "C", AdminLevel: "L", Name: name, Index: rank, Consolidated: c, Rank: rank}
	}
	ranking := []domain.ZoneRecord{zone("a", 3, 1), zone("b", 1, 2)}
	require.NoError(t, db.LoadReport(ctx, domain.Report{
		RunID: "r1", GeneratedAt: time.Now(), Ranking: ranking,
		Datasets: []domain.DatasetReport{{Key: "D", Records: ranking}},
	}))
	assert.True(t, validateStoredRanking(ctx, db).passed())
}
