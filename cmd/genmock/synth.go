package main

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"strconv"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/config"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

const (
	nodata   = -9999
	originX  = -62.0
	originY  = -20.0
	cellSize = 0.1
	wgs84    = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`
)

// synth generates smooth climate fields over a lat/lon grid. The future
// fields warm and dry towards the north-east so zone rankings are stable
// for a given seed.
type synth struct {
	meta raster.Meta
	rng  *rand.Rand
}

func newSynth(width, height int, seed uint64) *synth {
	return &synth{
		meta: raster.Meta{
			Width:     width,
			Height:    height,
			Transform: raster.Transform{originX, cellSize, 0, originY, 0, -cellSize},
			CRS:       wgs84,
			NoData:    nodata,
			HasNoData: true,
		},
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// variable returns the historical and future grids of v. A corner of the
// grid is left as nodata, like an ocean mask.
func (s *synth) variable(v config.VariableSpec) (hist, fut []float32) {
	w, h := s.meta.Width, s.meta.Height
	hist = make([]float32, w*h)
	fut = make([]float32, w*h)
	base, trend := baseline(v.Index)
	for row := range h {
		for col := range w {
			i := row*w + col
			if row > h*7/8 && col < w/8 {
				hist[i], fut[i] = nodata, nodata
				continue
			}
			x := float64(col) / float64(w-1)
			y := 1 - float64(row)/float64(h-1)
			hv := base + 2*math.Sin(3*x) + 3*y
			change := trend * (0.5 + x + y) / 2.5
			noise := s.rng.NormFloat64() * math.Abs(trend) * 0.02
			hist[i] = float32(hv)
			fut[i] = float32(hv + change + noise)
		}
	}
	return hist, fut
}

// baseline gives a plausible level and future change per WorldClim index.
func baseline(index int) (level, change float64) {
	switch index {
	case 1:
		return 21, 3
	case 5:
		return 32, 4
	case 14:
		return 40, -12
	case 15:
		return 35, 8
	default:
		return 10, 1
	}
}

type zoneRow struct {
	geom.Polygon
	NOMBRE string
}

type zoneDataset struct {
	path  string
	zones []zoneRow
}

func (s *synth) extent() (x0, y0, x1, y1 float64) {
	e := s.meta.Extent()
	return e.X.Lo, e.Y.Lo, e.X.Hi, e.Y.Hi
}

// datasets splits the grid into a 3x2 department layout, two regions, and a
// single study area.
func (s *synth) datasets(out string) []zoneDataset {
	x0, y0, x1, y1 := s.extent()
	dx, dy := (x1-x0)/3, (y1-y0)/2

	var deptos []zoneRow
	for r := range 2 {
		for c := range 3 {
			n := len(deptos) + 1
			deptos = append(deptos, zoneRow{
				Polygon: rect(x0+float64(c)*dx, y0+float64(r)*dy, x0+float64(c+1)*dx, y0+float64(r+1)*dy),
				NOMBRE:  "DEPARTAMENTO " + strconv.Itoa(n),
			})
		}
	}
	midX := (x0 + x1) / 2
	regions := []zoneRow{
		{Polygon: rect(x0, y0, midX, y1), NOMBRE: "REGION OESTE"},
		{Polygon: rect(midX, y0, x1, y1), NOMBRE: "REGION ESTE"},
	}
	area := []zoneRow{{Polygon: rect(x0, y0, x1, y1), NOMBRE: "AREA DE ESTUDIO"}}

	return []zoneDataset{
		{path: filepath.Join(out, "VECTOR", "deptos", "deptos.shp"), zones: deptos},
		{path: filepath.Join(out, "VECTOR", "regiones", "regiones.shp"), zones: regions},
		{path: filepath.Join(out, "VECTOR", "Area_Estudio", "Area_Estudio.shp"), zones: area},
	}
}

func (s *synth) study(out string) *config.Study {
	st := config.DefaultStudy()
	st.RasterDir = filepath.Join(out, "RASTER")
	st.OutputDir = filepath.Join(out, "RESULTADOS")
	st.Normalization.Zones = config.ZoneSource{
		Path:  filepath.Join(out, "VECTOR", "Area_Estudio", "Area_Estudio.shp"),
		Field: "NOMBRE",
	}
	st.Datasets = []config.DatasetSpec{
		{Key: "MOCKLAND_DEPTO", Level: "Departamento", Path: filepath.Join(out, "VECTOR", "deptos", "deptos.shp"), Field: "NOMBRE", Radar: true},
		{Key: "MOCKLAND_REGION", Level: "Región", Path: filepath.Join(out, "VECTOR", "regiones", "regiones.shp"), Field: "NOMBRE"},
	}
	return st
}

// rect is a closed clockwise ring, the outer ring order shapefiles use.
func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0}}}
}

func writeZones(path string, zones []zoneRow) error {
	enc, err := shp.NewEncoder(path, zoneRow{})
	if err != nil {
		return err
	}
	for _, z := range zones {
		if err := enc.Encode(z); err != nil {
			enc.Close()
			return err
		}
	}
	enc.Close()
	return nil
}
