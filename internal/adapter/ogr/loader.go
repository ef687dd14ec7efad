// Package ogr loads zones from any vector source GDAL can read, including
// multi-layer GeoPackages.
package ogr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/zonal"
	"github.com/airbusgeo/godal"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/wkb"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var registerOnce sync.Once

// Loader reads polygon zones through OGR and implements pipeline.ZoneLoader.
// Zone names are title-cased.
type Loader struct {
	logger *slog.Logger
}

// NewLoader registers the GDAL drivers and creates a Loader that logs to logger.
func NewLoader(logger *slog.Logger) *Loader {
	registerOnce.Do(godal.RegisterAll)
	return &Loader{logger: logger}
}

// LoadZones reads every feature of src.Layer, or of the first layer when
// src.Layer is empty. A zone's Index is its feature position, counting
// features without a polygon. When src.Field is empty, missing, or blank the
// zone is named after its index.
func (l *Loader) LoadZones(ctx context.Context, src pipeline.ZoneSource) ([]zonal.Zone, error) {
	if _, err := os.Stat(src.Path); err != nil {
		return nil, fmt.Errorf("zones %s: %w: %w", src.Path, domain.ErrSourceUnavailable, err)
	}
	ds, err := godal.Open(src.Path, godal.VectorOnly())
	if err != nil {
		return nil, fmt.Errorf("zones %s: %w: %w", src.Path, domain.ErrSourceUnavailable, err)
	}
	defer ds.Close()

	layer, err := pickLayer(ds.Layers(), src.Layer)
	if err != nil {
		return nil, fmt.Errorf("zones %s: %w", src.Path, err)
	}

	title := cases.Title(language.Und)
	var (
		zones   []zonal.Zone
		unnamed int
		skipped int
	)
	layer.ResetReading()
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := layer.NextFeature()
		if f == nil {
			break
		}
		poly, name, err := decodeFeature(f, src.Field)
		f.Close()
		if err != nil {
			skipped++
			l.logger.Warn("feature is not a polygon, skipping", "path", src.Path, "layer", layer.Name(), "index", i, "error", err)
			continue
		}
		if name == "" {
			name = strconv.Itoa(i)
			unnamed++
		} else {
			name = title.String(name)
		}
		zones = append(zones, zonal.Zone{
			Dataset:  src.Dataset,
			Country:  src.Country,
			Level:    src.Level,
			Name:     name,
			Index:    i,
			Geometry: poly,
		})
	}

	if unnamed > 0 {
		l.logger.Warn("name field missing, using feature index",
			"path", src.Path, "layer", layer.Name(), "field", src.Field, "zones", unnamed)
	}
	l.logger.Info("zones loaded", "dataset", src.Dataset, "path", src.Path, "layer", layer.Name(),
		"zones", len(zones), "skipped", skipped)
	return zones, nil
}

func pickLayer(layers []godal.Layer, name string) (godal.Layer, error) {
	if len(layers) == 0 {
		return godal.Layer{}, fmt.Errorf("no vector layer: %w", domain.ErrSourceUnavailable)
	}
	if name == "" {
		return layers[0], nil
	}
	names := make([]string, 0, len(layers))
	for _, l := range layers {
		if l.Name() == name {
			return l, nil
		}
		names = append(names, l.Name())
	}
	return godal.Layer{}, fmt.Errorf("layer %q not found (have %s): %w",
		name, strings.Join(names, ", "), domain.ErrSourceUnavailable)
}

// decodeFeature returns the polygon of f and the trimmed value of field,
// which is empty when the field is absent.
func decodeFeature(f *godal.Feature, field string) (geom.Polygonal, string, error) {
	g := f.Geometry()
	defer g.Close()
	if g.Empty() {
		return nil, "", fmt.Errorf("empty geometry")
	}
	b, err := g.WKB()
	if err != nil {
		return nil, "", err
	}
	decoded, err := wkb.Decode(b)
	if err != nil {
		return nil, "", err
	}
	poly, ok := decoded.(geom.Polygonal)
	if !ok {
		return nil, "", fmt.Errorf("geometry is %T", decoded)
	}

	if field == "" {
		return poly, "", nil
	}
	for k, v := range f.Fields() {
		if strings.EqualFold(k, field) {
			return poly, strings.TrimSpace(v.String()), nil
		}
	}
	return poly, "", nil
}
