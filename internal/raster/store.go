package raster

import "fmt"

// Reader reads blocks of a single-band grid.
type Reader interface {
	Meta() Meta
	// Read returns the cells of w in row-major order.
	Read(w Window) ([]float32, error)
	Close() error
}

// Writer writes blocks of a single-band float32 grid. Nothing is visible at
// the destination until Close succeeds; Abort discards the output.
type Writer interface {
	Meta() Meta
	Write(w Window, data []float32) error
	Close() error
	Abort() error
}

// Store opens and creates grids by path.
type Store interface {
	// Open fails with an error wrapping domain.ErrSourceUnavailable when the
	// grid is missing or unreadable.
	Open(path string) (Reader, error)
	// Create fails with an error wrapping domain.ErrSourceUnavailable when the
	// destination cannot be written.
	Create(path string, meta Meta) (Writer, error)
	// Ext is the file extension of grids this store writes, e.g. ".tif".
	Ext() string
}

// WriteGrid creates path, hands the writer to fill, and commits it. When fill
// fails the writer is aborted so no partial grid is left behind.
func WriteGrid(store Store, path string, meta Meta, fill func(Writer) error) error {
	w, err := store.Create(path, meta)
	if err != nil {
		return err
	}
	if err := fill(w); err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			return fmt.Errorf("%w (abort %s: %v)", err, path, abortErr)
		}
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}

// ReadAll reads every cell of r.
func ReadAll(r Reader) ([]float32, error) {
	return r.Read(r.Meta().Whole())
}

// CheckWindow validates that w lies inside a grid described by m and that
// data, when given, matches its size.
func CheckWindow(m Meta, w Window, data []float32) error {
	if w.Col < 0 || w.Row < 0 || w.Empty() || w.Col+w.Width > m.Width || w.Row+w.Height > m.Height {
		return fmt.Errorf("window %+v outside %dx%d grid", w, m.Width, m.Height)
	}
	if data != nil && len(data) != w.Len() {
		return fmt.Errorf("window %+v needs %d cells, got %d", w, w.Len(), len(data))
	}
	return nil
}
