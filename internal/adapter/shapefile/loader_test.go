package shapefile

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zoneRow struct {
	geom.Polygon
	Nombre string
}

func square(x0, y0, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0, Y: y0 + size}, {X: x0 + size, Y: y0 + size}, {X: x0 + size, Y: y0}, {X: x0, Y: y0},
	}}
}

func writeZones(t *testing.T, names ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deptos.shp")
	enc, err := shp.NewEncoder(path, zoneRow{})
	require.NoError(t, err)
	for i, n := range names {
		require.NoError(t, enc.Encode(zoneRow{Polygon: square(float64(i), 0, 1), Nombre: n}))
	}
	enc.Close()
	return path
}

func newLoader() *Loader {
	return NewLoader(slog.New(slog.DiscardHandler))
}

func TestLoadZones(t *testing.T) {
	path := writeZones(t, "ALTO PARANA", "boqueron")

	zones, err := newLoader().LoadZones(context.Background(), pipeline.ZoneSource{
		Dataset: "PARAGUAY_DEPTO", Country: "PARAGUAY", Level: "Departamento",
		Path: path, Field: "Nombre",
	})
	require.NoError(t, err)
	require.Len(t, zones, 2)

	assert.Equal(t, "Alto Parana", zones[0].Name)
	assert.Equal(t, 0, zones[0].Index)
	assert.Equal(t, "Boqueron", zones[1].Name)
	assert.Equal(t, 1, zones[1].Index)
	assert.Equal(t, "PARAGUAY_DEPTO", zones[1].Dataset)
	assert.Equal(t, "Departamento", zones[1].Level)

	b := zones[1].Geometry.Bounds()
	assert.InDelta(t, 1.0, b.Min.X, 1e-9)
	assert.InDelta(t, 2.0, b.Max.X, 1e-9)
}

func TestLoadZones_MissingFieldUsesIndex(t *testing.T) {
	path := writeZones(t, "Artigas", "Rivera")

	zones, err := newLoader().LoadZones(context.Background(), pipeline.ZoneSource{Path: path, Field: "NAME_1"})
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "0", zones[0].Name)
	assert.Equal(t, "1", zones[1].Name)
}

func TestLoadZones_MissingFile(t *testing.T) {
	_, err := newLoader().LoadZones(context.Background(), pipeline.ZoneSource{Path: filepath.Join(t.TempDir(), "none.shp")})
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestLoadZones_Cancelled(t *testing.T) {
	path := writeZones(t, "Salto")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader().LoadZones(ctx, pipeline.ZoneSource{Path: path, Field: "Nombre"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCleanField(t *testing.T) {
	assert.Equal(t, "Paysandu", CleanField("Paysandu  \x00\x00"))
	assert.Equal(t, "Tacuarembó", CleanField("Tacuaremb\xf3"))
	assert.Equal(t, "São Paulo", CleanField("São Paulo"))
}
