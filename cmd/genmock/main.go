// Command genmock writes a small synthetic study: historical and future
// GeoTIFFs for the default four variables, two zone datasets, a study-area
// shapefile, and the study YAML that ties them together.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
//	STUDY_FILE=data/mock/hotspots.yaml go run ./cmd/hotspots
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/geotiff"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/config"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the synthetic study")
	width := flag.Int("width", 120, "grid width in cells")
	height := flag.Int("height", 90, "grid height in cells")
	seed := flag.Uint64("seed", 1, "random seed for the future anomalies")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *width < 8 || *height < 8 {
		return fmt.Errorf("grid must be at least 8x8, got %dx%d", *width, *height)
	}

	g := newSynth(*width, *height, *seed)
	study := g.study(*out)

	store := geotiff.NewStore()
	for _, v := range study.Variables {
		hist, fut := g.variable(v)
		histPath := filepath.Join(study.RasterDir, fmt.Sprintf("bio%d_his.tif", v.Index))
		futPath := filepath.Join(study.RasterDir, fmt.Sprintf("bio%d_fut.tif", v.Index))
		if err := writeGrid(store, histPath, g.meta, hist); err != nil {
			return err
		}
		if err := writeGrid(store, futPath, g.meta, fut); err != nil {
			return err
		}
		log.Printf("%s: wrote %s and %s", v.Name, histPath, futPath)
	}

	for _, ds := range g.datasets(*out) {
		if err := os.MkdirAll(filepath.Dir(ds.path), 0o755); err != nil {
			return err
		}
		if err := writeZones(ds.path, ds.zones); err != nil {
			return fmt.Errorf("writing %s: %w", ds.path, err)
		}
		log.Printf("%s: %d zones", ds.path, len(ds.zones))
	}

	studyPath := filepath.Join(*out, "hotspots.yaml")
	if err := config.WriteStudy(studyPath, study); err != nil {
		return err
	}
	log.Printf("wrote study: %s", studyPath)
	return nil
}

func writeGrid(store raster.Store, path string, meta raster.Meta, data []float32) error {
	err := raster.WriteGrid(store, path, meta, func(w raster.Writer) error {
		return w.Write(meta.Whole(), data)
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
