// Package geotiff implements raster.Store on GeoTIFF files through GDAL.
package geotiff

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
)

var registerOnce sync.Once

// Store reads and writes single-band GeoTIFFs. Outputs are written to a
// temporary file next to the destination and renamed on Close, so readers
// never observe a partial grid.
type Store struct {
	compress string
}

// NewStore registers the GDAL drivers and returns a store writing
// compressed float32 GeoTIFFs.
func NewStore() *Store {
	registerOnce.Do(godal.RegisterAll)
	return &Store{compress: "DEFLATE"}
}

// Ext implements raster.Store.
func (s *Store) Ext() string { return ".tif" }

// Open implements raster.Store. Only the first band is read.
func (s *Store) Open(path string) (raster.Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, domain.ErrSourceUnavailable, err)
	}
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, domain.ErrSourceUnavailable, err)
	}
	meta, err := readMeta(ds)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &reader{ds: ds, band: ds.Bands()[0], meta: meta}, nil
}

func readMeta(ds *godal.Dataset) (raster.Meta, error) {
	bands := ds.Bands()
	if len(bands) == 0 {
		return raster.Meta{}, errors.New("dataset has no band")
	}
	st := bands[0].Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.Meta{}, fmt.Errorf("geotransform: %w", err)
	}
	meta := raster.Meta{
		Width:       st.SizeX,
		Height:      st.SizeY,
		BlockWidth:  st.BlockSizeX,
		BlockHeight: st.BlockSizeY,
		Transform:   raster.Transform(gt),
		CRS:         ds.Projection(),
	}
	meta.NoData, meta.HasNoData = bands[0].NoData()
	return meta, nil
}

type reader struct {
	ds   *godal.Dataset
	band godal.Band
	meta raster.Meta
}

func (r *reader) Meta() raster.Meta { return r.meta }

func (r *reader) Read(w raster.Window) ([]float32, error) {
	if err := raster.CheckWindow(r.meta, w, nil); err != nil {
		return nil, err
	}
	buf := make([]float32, w.Len())
	if err := r.band.Read(w.Col, w.Row, buf, w.Width, w.Height); err != nil {
		return nil, fmt.Errorf("read window %+v: %w", w, err)
	}
	return buf, nil
}

func (r *reader) Close() error { return r.ds.Close() }

// Create implements raster.Store. Parent directories are created as needed.
func (s *Store) Create(path string, meta raster.Meta) (raster.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	ds, err := godal.Create(godal.GTiff, tmp, 1, godal.Float32, meta.Width, meta.Height,
		godal.CreationOption(s.creationOptions(meta)...))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := &writer{ds: ds, band: ds.Bands()[0], meta: meta, tmp: tmp, path: path}
	if err := w.init(); err != nil {
		_ = w.Abort()
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return w, nil
}

// creationOptions tiles the output like its template when the template's
// blocks are valid GeoTIFF tiles, and falls back to strips otherwise.
func (s *Store) creationOptions(meta raster.Meta) []string {
	opts := []string{"COMPRESS=" + s.compress, "BIGTIFF=IF_SAFER"}
	bw, bh := meta.BlockWidth, meta.BlockHeight
	if bw > 0 && bh > 0 && bw%16 == 0 && bh%16 == 0 && bw < meta.Width {
		opts = append(opts, "TILED=YES",
			"BLOCKXSIZE="+strconv.Itoa(bw),
			"BLOCKYSIZE="+strconv.Itoa(bh))
	}
	return opts
}

type writer struct {
	ds   *godal.Dataset
	band godal.Band
	meta raster.Meta
	tmp  string
	path string
	done bool
}

func (w *writer) init() error {
	if err := w.ds.SetGeoTransform([6]float64(w.meta.Transform)); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if w.meta.CRS != "" {
		if err := w.ds.SetProjection(w.meta.CRS); err != nil {
			return fmt.Errorf("set projection: %w", err)
		}
	}
	if w.meta.HasNoData {
		if err := w.band.SetNoData(w.meta.NoData); err != nil {
			return fmt.Errorf("set nodata: %w", err)
		}
		if err := w.band.Fill(w.meta.NoData, 0); err != nil {
			return fmt.Errorf("fill nodata: %w", err)
		}
	}
	return nil
}

func (w *writer) Meta() raster.Meta { return w.meta }

func (w *writer) Write(win raster.Window, data []float32) error {
	if err := raster.CheckWindow(w.meta, win, data); err != nil {
		return err
	}
	if err := w.band.Write(win.Col, win.Row, data, win.Width, win.Height); err != nil {
		return fmt.Errorf("write window %+v: %w", win, err)
	}
	return nil
}

// Close flushes the dataset and moves it into place.
func (w *writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.ds.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		_ = os.Remove(w.tmp)
		return fmt.Errorf("commit %s: %w", w.path, err)
	}
	return nil
}

// Abort discards the partial output; an existing grid at the destination is
// left untouched.
func (w *writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	closeErr := w.ds.Close()
	if err := os.Remove(w.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(closeErr, err)
	}
	return closeErr
}
