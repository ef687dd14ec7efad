package main

import (
	"context"
	"math"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/sqlite"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/engine"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"gonum.org/v1/gonum/stat"
)

// maxErrors bounds the cell errors reported per grid.
const maxErrors = 5

type validator struct {
	store raster.Store
	plan  pipeline.Plan
	tol   float64
}

func (v validator) phases() []*phase {
	return []*phase{
		v.validateAlignment(),
		v.validateDeltas(),
		v.validateZMoments(),
		v.validateComposite(),
	}
}

type loadedGrid struct {
	meta raster.Meta
	data []float32
}

func (v validator) load(path string) (loadedGrid, error) {
	r, err := v.store.Open(path)
	if err != nil {
		return loadedGrid{}, err
	}
	defer r.Close()
	data, err := raster.ReadAll(r)
	if err != nil {
		return loadedGrid{}, err
	}
	return loadedGrid{meta: r.Meta(), data: data}, nil
}

func (v validator) valid(g loadedGrid, i int) bool {
	return !g.meta.IsNoData(g.data[i], v.plan.NoData)
}

// validateAlignment checks that every derived grid exists and shares the
// first historical grid's shape, transform, and reference system.
func (v validator) validateAlignment() *phase {
	p := &phase{name: "Phase 1: Derived grid alignment"}
	if len(v.plan.Variables) == 0 {
		p.skipped = "no variables"
		return p
	}
	ref, err := v.load(v.plan.Variables[0].HistPath)
	if err != nil {
		p.errorf("reference grid: %v", err)
		return p
	}

	paths := []string{v.plan.Layout.Composite()}
	for _, vr := range v.plan.Variables {
		paths = append(paths, v.plan.Layout.Delta(vr), v.plan.Layout.Z(vr))
	}
	for _, path := range paths {
		r, err := v.store.Open(path)
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		if err := ref.meta.Compatible(r.Meta()); err != nil {
			p.errorf("%s: %v", path, err)
		}
		r.Close()
	}
	return p
}

// validateDeltas recomputes every delta grid from its sources.
func (v validator) validateDeltas() *phase {
	p := &phase{name: "Phase 2: Delta recomputation"}
	for _, vr := range v.plan.Variables {
		hist, err := v.load(vr.HistPath)
		if err != nil {
			p.errorf("%s historical: %v", vr.Name, err)
			continue
		}
		fut, err := v.load(vr.FutPath)
		if err != nil {
			p.errorf("%s future: %v", vr.Name, err)
			continue
		}
		stored, err := v.load(v.plan.Layout.Delta(vr))
		if err != nil {
			p.errorf("%s delta: %v", vr.Name, err)
			continue
		}
		if len(hist.data) != len(stored.data) || len(fut.data) != len(stored.data) {
			p.errorf("%s: grid sizes differ", vr.Name)
			continue
		}
		want, _ := engine.DeltaBlock(hist.data, fut.data, hist.meta, fut.meta, v.plan.NoData, vr.DeltaSign(v.plan.InversionPoint))
		v.compare(p, vr.Name+" delta", want, stored)
	}
	return p
}

// compare reports cells where got differs from want in validity or value.
func (v validator) compare(p *phase, label string, want []float32, got loadedGrid) {
	reported := 0
	for i := range want {
		if reported == maxErrors {
			p.errorf("%s: further mismatches omitted", label)
			return
		}
		wantValid := want[i] != float32(v.plan.NoData)
		gotValid := v.valid(got, i)
		switch {
		case wantValid != gotValid:
			p.errorf("%s: cell %d validity %t, want %t", label, i, gotValid, wantValid)
			reported++
		case wantValid && math.Abs(float64(want[i]-got.data[i])) > v.tol:
			p.errorf("%s: cell %d = %g, want %g", label, i, got.data[i], want[i])
			reported++
		}
	}
}

// validateZMoments checks that the pooled Z-scores of a globally normalized
// run have mean 0 and population standard deviation 1.
func (v validator) validateZMoments() *phase {
	p := &phase{name: "Phase 3: Pooled Z-score moments"}
	if v.plan.Mode != domain.Global {
		p.skipped = "per-zone normalization"
		return p
	}
	var pooled []float64
	for _, vr := range v.plan.Variables {
		z, err := v.load(v.plan.Layout.Z(vr))
		if err != nil {
			p.errorf("%s z: %v", vr.Name, err)
			return p
		}
		for i, val := range z.data {
			if v.valid(z, i) {
				pooled = append(pooled, float64(val))
			}
		}
	}
	if len(pooled) == 0 {
		p.errorf("no valid Z cells")
		return p
	}
	mean, std := stat.PopMeanStdDev(pooled, nil)
	if math.Abs(mean) > 1e-3 {
		p.errorf("pooled Z mean = %g, want 0", mean)
	}
	if math.Abs(std-1) > 1e-3 {
		p.errorf("pooled Z std = %g, want 1", std)
	}
	return p
}

// validateComposite recomputes the composite from the Z grids.
func (v validator) validateComposite() *phase {
	p := &phase{name: "Phase 4: Composite validity and sum"}
	if len(v.plan.Variables) == 0 {
		p.skipped = "no variables"
		return p
	}
	var (
		blocks [][]float32
		metas  []raster.Meta
		signs  []float32
	)
	for _, vr := range v.plan.Variables {
		z, err := v.load(v.plan.Layout.Z(vr))
		if err != nil {
			p.errorf("%s z: %v", vr.Name, err)
			return p
		}
		blocks = append(blocks, z.data)
		metas = append(metas, z.meta)
		signs = append(signs, float32(vr.AggregationSign(v.plan.InversionPoint)))
	}
	stored, err := v.load(v.plan.Layout.Composite())
	if err != nil {
		p.errorf("composite: %v", err)
		return p
	}
	want, _ := engine.CompositeBlock(blocks, metas, signs, v.plan.NoData)
	if len(want) != len(stored.data) {
		p.errorf("composite: %d cells, want %d", len(stored.data), len(want))
		return p
	}
	v.compare(p, "composite", want, stored)
	return p
}

// validateStoredRanking checks that the latest stored run has ranks 1..N in
// order of non-increasing consolidated index.
func validateStoredRanking(ctx context.Context, db *sqlite.Store) *phase {
	p := &phase{name: "Phase 5: Stored ranking order"}
	runID, err := db.LatestRun(ctx)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if runID == "" {
		p.skipped = "no stored run"
		return p
	}
	ranking, err := db.Ranking(ctx, runID)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for i, z := range ranking {
		if z.Rank != i+1 {
			p.errorf("%s: rank %d at position %d", z.Zone, z.Rank, i+1)
		}
		if i > 0 && z.Consolidated > ranking[i-1].Consolidated {
			p.errorf("%s (rank %d) has a higher index than %s (rank %d)", z.Zone, z.Rank, ranking[i-1].Zone, ranking[i-1].Rank)
		}
	}
	return p
}
