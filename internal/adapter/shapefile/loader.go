// Package shapefile loads zones from ESRI shapefiles.
package shapefile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/zonal"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
)

// Loader reads polygon zones and implements pipeline.ZoneLoader.
// Zone names are title-cased.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader that logs to logger.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadZones decodes every record of src.Path. A zone's Index is its record
// position, counting records without a polygon. When src.Field is empty,
// missing from the file, or blank in a record the zone is named after its index.
func (l *Loader) LoadZones(ctx context.Context, src pipeline.ZoneSource) ([]zonal.Zone, error) {
	if _, err := os.Stat(src.Path); err != nil {
		return nil, fmt.Errorf("zones %s: %w: %w", src.Path, domain.ErrSourceUnavailable, err)
	}
	dec, err := shp.NewDecoder(src.Path)
	if err != nil {
		return nil, fmt.Errorf("zones %s: %w: %w", src.Path, domain.ErrSourceUnavailable, err)
	}
	defer dec.Close()

	var fields []string
	if hasField(dec, src.Field) {
		fields = []string{src.Field}
	}

	title := cases.Title(language.Und) // a Caser is not safe for concurrent use
	var (
		zones   []zonal.Zone
		unnamed int
		skipped int
	)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, attrs, more := dec.DecodeRowFields(fields...)
		if !more {
			break
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			skipped++
			l.logger.Warn("record is not a polygon, skipping", "path", src.Path, "index", i)
			continue
		}

		name, ok := zoneName(title, attrs, src.Field)
		if !ok {
			name = strconv.Itoa(i)
			unnamed++
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
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("zones %s: %w", src.Path, err)
	}

	if unnamed > 0 {
		l.logger.Warn("name field missing, using record index",
			"path", src.Path, "field", src.Field, "zones", unnamed)
	}
	l.logger.Info("zones loaded", "dataset", src.Dataset, "path", src.Path, "zones", len(zones), "skipped", skipped)
	return zones, nil
}

func zoneName(title cases.Caser, attrs map[string]string, field string) (string, bool) {
	if field == "" {
		return "", false
	}
	v, ok := attrs[field]
	if !ok {
		return "", false
	}
	v = CleanField(v)
	if v == "" {
		return "", false
	}
	return title.String(v), true
}

func hasField(dec *shp.Decoder, name string) bool {
	if name == "" {
		return false
	}
	for _, f := range dec.Fields() {
		if f.String() == name {
			return true
		}
	}
	return false
}

// CleanField strips DBF padding and decodes Latin-1 values, which older
// shapefiles carry without a code page file.
func CleanField(v string) string {
	v = strings.TrimSpace(strings.ReplaceAll(v, "\x00", ""))
	if !utf8.ValidString(v) {
		if dec, err := charmap.ISO8859_1.NewDecoder().String(v); err == nil {
			v = dec
		}
	}
	return v
}
