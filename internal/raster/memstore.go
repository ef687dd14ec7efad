package raster

import (
	"fmt"
	"sort"
	"sync"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
)

// MemStore keeps grids in memory, keyed by path. It is safe for concurrent use.
type MemStore struct {
	mu    sync.RWMutex
	grids map[string]*memGrid
}

type memGrid struct {
	meta Meta
	data []float32
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{grids: make(map[string]*memGrid)}
}

// Put stores a complete grid, replacing any grid at path.
func (s *MemStore) Put(path string, meta Meta, data []float32) error {
	if len(data) != meta.Width*meta.Height {
		return fmt.Errorf("put %s: %d cells for a %dx%d grid", path, len(data), meta.Width, meta.Height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids[path] = &memGrid{meta: meta, data: append([]float32(nil), data...)}
	return nil
}

// Get returns a copy of the grid at path.
func (s *MemStore) Get(path string) (Meta, []float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grids[path]
	if !ok {
		return Meta{}, nil, false
	}
	return g.meta, append([]float32(nil), g.data...), true
}

// Paths lists the stored grid paths in sorted order.
func (s *MemStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.grids))
	for p := range s.grids {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Ext reports the GeoTIFF extension so layouts match the on-disk store.
func (s *MemStore) Ext() string { return ".tif" }

// Open returns a reader over the committed grid at path.
func (s *MemStore) Open(path string) (Reader, error) {
	s.mu.RLock()
	g, ok := s.grids[path]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, domain.ErrSourceUnavailable)
	}
	return &memReader{grid: g}, nil
}

// Create returns a writer whose grid becomes visible at path on Close.
func (s *MemStore) Create(path string, meta Meta) (Writer, error) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("create %s: empty %dx%d grid: %w", path, meta.Width, meta.Height, domain.ErrSourceUnavailable)
	}
	data := make([]float32, meta.Width*meta.Height)
	for i := range data {
		data[i] = float32(meta.NoData)
	}
	return &memWriter{store: s, path: path, grid: &memGrid{meta: meta, data: data}}, nil
}

type memReader struct {
	grid *memGrid
}

func (r *memReader) Meta() Meta { return r.grid.meta }

func (r *memReader) Read(w Window) ([]float32, error) {
	if err := CheckWindow(r.grid.meta, w, nil); err != nil {
		return nil, err
	}
	out := make([]float32, 0, w.Len())
	for row := w.Row; row < w.Row+w.Height; row++ {
		start := row*r.grid.meta.Width + w.Col
		out = append(out, r.grid.data[start:start+w.Width]...)
	}
	return out, nil
}

func (r *memReader) Close() error { return nil }

type memWriter struct {
	store  *MemStore
	path   string
	grid   *memGrid
	closed bool
}

func (w *memWriter) Meta() Meta { return w.grid.meta }

func (w *memWriter) Write(win Window, data []float32) error {
	if w.closed {
		return fmt.Errorf("write %s: writer closed", w.path)
	}
	if err := CheckWindow(w.grid.meta, win, data); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	for i := 0; i < win.Height; i++ {
		start := (win.Row+i)*w.grid.meta.Width + win.Col
		copy(w.grid.data[start:start+win.Width], data[i*win.Width:(i+1)*win.Width])
	}
	return nil
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.grids[w.path] = w.grid
	return nil
}

func (w *memWriter) Abort() error {
	w.closed = true
	return nil
}
