package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/engine"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/observability"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/raster"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/report"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/zonal"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ZoneSource identifies a polygon file and how its zones are labelled.
type ZoneSource struct {
	Dataset string
	Country string
	Level   string
	Path    string
	Layer   string // layer of a multi-layer source; empty means the first
	Field   string
}

// ZoneLoader reads the zones of a polygon file.
type ZoneLoader interface {
	LoadZones(ctx context.Context, src ZoneSource) ([]zonal.Zone, error)
}

// ExtLoader dispatches each source to a loader by file extension, compared
// case-insensitively with the leading dot (".shp"). Sources with any other
// extension go to Default.
type ExtLoader struct {
	ByExt   map[string]ZoneLoader
	Default ZoneLoader
}

// LoadZones implements ZoneLoader.
func (l ExtLoader) LoadZones(ctx context.Context, src ZoneSource) ([]zonal.Zone, error) {
	if zl, ok := l.ByExt[strings.ToLower(filepath.Ext(src.Path))]; ok {
		return zl.LoadZones(ctx, src)
	}
	if l.Default == nil {
		return nil, fmt.Errorf("zones %s: no loader for %q files: %w", src.Path, filepath.Ext(src.Path), domain.ErrSourceUnavailable)
	}
	return l.Default.LoadZones(ctx, src)
}

// ReportLoader writes a finished report to a destination.
type ReportLoader interface {
	LoadReport(ctx context.Context, rep domain.Report) error
}

// NamedLoader pairs a loader with the name used in logs and metrics.
type NamedLoader struct {
	Name   string
	Loader ReportLoader
}

// Dataset is a zone dataset to report on.
type Dataset struct {
	Report domain.DatasetReport // identity; Records are filled by the run
	Source ZoneSource
}

// Plan is the immutable description of a run.
type Plan struct {
	Variables          []domain.Variable
	Mode               domain.NormalizationMode
	InversionPoint     domain.InversionPoint
	NoData             float64
	Layout             engine.Layout
	NormalizationZones ZoneSource // PerZone mode only
	Datasets           []Dataset

	// ZonalWorkers bounds how many datasets are aggregated at once. Zero or
	// less means one.
	ZonalWorkers int
}

// Runner executes a Plan: deltas, normalization, composite, zonal
// aggregation, ranking, and report loading.
type Runner struct {
	plan    Plan
	store   raster.Store
	zones   ZoneLoader
	loaders []NamedLoader
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu     sync.Mutex
	status Status
}

// New creates a Runner with the given plan, collaborators, and observability.
func New(plan Plan, store raster.Store, zones ZoneLoader, loaders []NamedLoader, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		plan:    plan,
		store:   store,
		zones:   zones,
		loaders: loaders,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has produced a report, or an error
// describing why the job is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no run has produced a report yet")
	}
	return nil
}

// Status returns the progress of the current or last run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Runner) setStatus(fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}

// Run executes the plan once. The error is non-nil only when the whole run
// failed (see domain.IsFatal); per-item failures are reported in the Result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := r.logger.With("run_id", res.RunID)
	start := time.Now()

	logger.Info("run started",
		"variables", len(r.plan.Variables),
		"datasets", len(r.plan.Datasets),
		"mode", r.plan.Mode.String(),
		"inversion_point", r.plan.InversionPoint.String(),
	)
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)
	r.setStatus(func(s *Status) {
		*s = Status{RunID: res.RunID, Running: true, StartedAt: domain.Now()}
	})

	rep, err := r.run(ctx, logger, &res)
	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.setStatus(func(s *Status) {
			s.Running, s.FinishedAt, s.Error = false, domain.Now(), err.Error()
		})
		r.metrics.LastRunSuccess.Set(0)
		logger.Error("run failed", "error", err, "fatal", domain.IsFatal(err))
		return res, err
	}
	res.Report = rep

	res.Loaders = r.load(ctx, logger, rep)
	r.metrics.LastRunSuccess.Set(1)
	r.ready.Store(true)
	r.setStatus(func(s *Status) {
		s.Running, s.FinishedAt, s.RankedZones = false, domain.Now(), len(rep.Ranking)
	})
	logger.Info("run finished",
		"ranked_zones", len(rep.Ranking),
		"partial", res.Failed(),
		"duration", time.Since(start),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, res *Result) (domain.Report, error) {
	outcomes := make(map[string]*VariableOutcome, len(r.plan.Variables))
	for _, v := range r.plan.Variables {
		res.Variables = append(res.Variables, VariableOutcome{Variable: v})
	}
	for i := range res.Variables {
		outcomes[res.Variables[i].Variable.Key] = &res.Variables[i]
	}

	deltas, err := r.deltas(ctx, logger, outcomes)
	if err != nil {
		return domain.Report{}, err
	}

	norm, err := r.normalize(ctx, logger, deltas, outcomes)
	if err != nil {
		return domain.Report{}, err
	}

	composite, err := r.composite(ctx, logger, norm)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Report{}, ctx.Err()
		}
		res.Composite = err
	}

	grids := zonalGrids(deltas, norm.Succeeded(), composite)
	datasets, dsOutcomes := r.aggregate(ctx, logger, grids)
	res.Datasets = dsOutcomes
	if err := ctx.Err(); err != nil {
		return domain.Report{}, err
	}

	rep := report.Assemble(report.Input{
		RunID:          res.RunID,
		Mode:           r.plan.Mode,
		InversionPoint: r.plan.InversionPoint,
		Variables:      r.plan.Variables,
		Baseline:       norm.Baseline,
		Datasets:       datasets,
	}, logger)
	r.metrics.RankedZones.Set(float64(len(rep.Ranking)))
	return rep, nil
}

func (r *Runner) deltas(ctx context.Context, logger *slog.Logger, outcomes map[string]*VariableOutcome) ([]engine.DeltaResult, error) {
	defer r.timeStage(StageDelta)()
	d := engine.NewDelta(r.store, r.plan.NoData, r.plan.InversionPoint, logger)

	var out []engine.DeltaResult
	for _, v := range r.plan.Variables {
		o := outcomes[v.Key]
		o.Stage = StageDelta
		res, err := d.Compute(ctx, v, r.plan.Layout.Delta(v))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.Err = err
			r.metrics.VariablesProcessed.WithLabelValues(string(StageDelta), "error").Inc()
			logger.Error("delta failed, skipping variable", "variable", v.Name, "error", err)
			continue
		}
		r.metrics.VariablesProcessed.WithLabelValues(string(StageDelta), "success").Inc()
		r.metrics.ValidCells.WithLabelValues(v.DeltaGridName()).Set(float64(res.ValidCells))
		out = append(out, res)
	}
	return out, nil
}

func (r *Runner) normalize(ctx context.Context, logger *slog.Logger, deltas []engine.DeltaResult, outcomes map[string]*VariableOutcome) (engine.Normalization, error) {
	defer r.timeStage(StageNormalize)()

	var zones []zonal.Zone
	if r.plan.Mode == domain.PerZone {
		var err error
		zones, err = r.zones.LoadZones(ctx, r.plan.NormalizationZones)
		if err != nil {
			return engine.Normalization{}, fmt.Errorf("normalization zones: %w", err)
		}
		logger.Info("normalization zones loaded", "zones", len(zones), "path", r.plan.NormalizationZones.Path)
	}

	n := engine.NewNormalizer(r.store, r.plan.Layout, r.plan.NoData, r.plan.Mode, logger)
	norm, err := n.Normalize(ctx, deltas, zones)
	if err != nil {
		return norm, fmt.Errorf("normalize: %w", err)
	}
	r.metrics.DegenerateZones.Add(float64(norm.DegenerateZones))

	for _, g := range norm.Grids {
		o := outcomes[g.Variable.Key]
		o.Stage = StageNormalize
		if g.Err != nil {
			o.Err = g.Err
			r.metrics.VariablesProcessed.WithLabelValues(string(StageNormalize), "error").Inc()
			logger.Error("normalization failed, skipping variable", "variable", g.Variable.Name, "error", g.Err)
			continue
		}
		r.metrics.VariablesProcessed.WithLabelValues(string(StageNormalize), "success").Inc()
		r.metrics.ValidCells.WithLabelValues(g.Variable.ZGridName()).Set(float64(g.ValidCells))
	}
	return norm, nil
}

// composite builds the composite grid when every planned variable has a Z
// grid. A composite over a subset of variables is not comparable across runs.
func (r *Runner) composite(ctx context.Context, logger *slog.Logger, norm engine.Normalization) (*engine.CompositeResult, error) {
	defer r.timeStage(StageComposite)()

	ok := norm.Succeeded()
	if len(ok) != len(r.plan.Variables) {
		err := fmt.Errorf("composite needs %d z grids, have %d", len(r.plan.Variables), len(ok))
		r.metrics.VariablesProcessed.WithLabelValues(string(StageComposite), "error").Inc()
		logger.Error("composite skipped", "error", err)
		return nil, err
	}

	c := engine.NewComposite(r.store, r.plan.NoData, r.plan.InversionPoint, logger)
	res, err := c.Aggregate(ctx, ok, r.plan.Layout.Composite())
	if err != nil {
		r.metrics.VariablesProcessed.WithLabelValues(string(StageComposite), "error").Inc()
		logger.Error("composite failed", "error", err)
		return nil, err
	}
	r.metrics.VariablesProcessed.WithLabelValues(string(StageComposite), "success").Inc()
	r.metrics.ValidCells.WithLabelValues(domain.CompositeGridName).Set(float64(res.ValidCells))
	return &res, nil
}

func zonalGrids(deltas []engine.DeltaResult, zs []engine.ZResult, composite *engine.CompositeResult) []zonal.Grid {
	var grids []zonal.Grid
	for _, d := range deltas {
		grids = append(grids, zonal.Grid{Name: d.Variable.DeltaGridName(), Path: d.Path})
	}
	for _, z := range zs {
		grids = append(grids, zonal.Grid{Name: z.Variable.ZGridName(), Path: z.Path})
	}
	if composite != nil {
		grids = append(grids, zonal.Grid{Name: domain.CompositeGridName, Path: composite.Path})
	}
	return grids
}

// aggregate summarizes every dataset. Datasets are independent and run
// concurrently up to plan.ZonalWorkers; a failing dataset only loses its own
// records.
func (r *Runner) aggregate(ctx context.Context, logger *slog.Logger, grids []zonal.Grid) ([]domain.DatasetReport, []DatasetOutcome) {
	defer r.timeStage(StageZonal)()

	reports := make([]domain.DatasetReport, len(r.plan.Datasets))
	outcomes := make([]DatasetOutcome, len(r.plan.Datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.plan.ZonalWorkers, 1))
	for i, ds := range r.plan.Datasets {
		g.Go(func() error {
			reports[i], outcomes[i] = r.aggregateDataset(gctx, logger, ds, grids)
			return nil
		})
	}
	_ = g.Wait()
	return reports, outcomes
}

func (r *Runner) aggregateDataset(ctx context.Context, logger *slog.Logger, ds Dataset, grids []zonal.Grid) (domain.DatasetReport, DatasetOutcome) {
	rep := ds.Report
	rep.Records = nil
	out := DatasetOutcome{Dataset: rep.Key}
	logger = logger.With("dataset", rep.Key)

	fail := func(err error) (domain.DatasetReport, DatasetOutcome) {
		out.Err = err
		r.metrics.ZonesSummarized.WithLabelValues(rep.Key, "error").Inc()
		logger.Error("dataset skipped", "error", err)
		return rep, out
	}

	if len(grids) == 0 {
		return fail(errors.New("no derived grids to summarize"))
	}
	zones, err := r.zones.LoadZones(ctx, ds.Source)
	if err != nil {
		return fail(err)
	}
	session, err := zonal.OpenSession(r.store, grids, r.plan.NoData)
	if err != nil {
		return fail(err)
	}
	defer session.Close()

	for _, z := range zones {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return rep, out
		}
		rec, err := session.Record(z)
		if err != nil {
			out.FailedZones++
			r.metrics.ZonesSummarized.WithLabelValues(rep.Key, "error").Inc()
			logger.Warn("zone summary failed, skipping zone", "zone", z.Name, "index", z.Index, "error", err)
			continue
		}
		rec.Dataset, rec.Country, rec.AdminLevel = rep.Key, rep.Country, rep.AdminLevel
		rec = domain.DeriveIndices(rec, r.plan.Variables, r.plan.InversionPoint)
		out.Zones++

		if emptyRecord(rec) {
			out.EmptyZones++
			r.metrics.ZonesSummarized.WithLabelValues(rep.Key, "empty").Inc()
			logger.Warn("zone has no valid cells", "zone", z.Name, "index", z.Index, "error", domain.ErrDegenerateZone)
		} else {
			r.metrics.ZonesSummarized.WithLabelValues(rep.Key, "success").Inc()
		}
		rep.Records = append(rep.Records, rec)
	}

	logger.Info("dataset summarized", "zones", out.Zones, "empty_zones", out.EmptyZones, "failed_zones", out.FailedZones)
	return rep, out
}

func emptyRecord(rec domain.ZoneRecord) bool {
	for _, st := range rec.Stats {
		if !math.IsNaN(st.Mean) {
			return false
		}
	}
	return true
}

func (r *Runner) load(ctx context.Context, logger *slog.Logger, rep domain.Report) []LoaderOutcome {
	defer r.timeStage(StageLoad)()

	out := make([]LoaderOutcome, 0, len(r.loaders))
	for _, l := range r.loaders {
		err := l.Loader.LoadReport(ctx, rep)
		if err != nil {
			r.metrics.LoaderErrors.WithLabelValues(l.Name).Inc()
			logger.Error("report loader failed", "loader", l.Name, "error", err)
		} else {
			logger.Info("report loaded", "loader", l.Name)
		}
		out = append(out, LoaderOutcome{Loader: l.Name, Err: err})
	}
	return out
}

func (r *Runner) timeStage(s Stage) func() {
	r.setStatus(func(st *Status) { st.Stage = s })
	start := time.Now()
	return func() {
		r.metrics.StageDuration.WithLabelValues(string(s)).Observe(time.Since(start).Seconds())
	}
}
