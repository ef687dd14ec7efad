// Command hotspots runs the climate hotspot pipeline once: it derives delta,
// Z-score, and composite grids from the study's historical and future
// GeoTIFFs, aggregates them over every zone dataset, ranks the zones, and
// writes the report to the configured sinks.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/geotiff"
	httpadapter "github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/http"
	kafkaadapter "github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/kafka"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/ogr"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/shapefile"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/sqlite"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/adapter/xlsx"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/config"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/observability"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	study, err := cfg.Study()
	if err != nil {
		logger.Error("failed to load study", "error", err, "study_file", cfg.StudyFile)
		return 1
	}

	store := geotiff.NewStore()
	plan, err := pipeline.NewPlan(study, store.Ext())
	if err != nil {
		logger.Error("failed to build plan", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loaders := []pipeline.NamedLoader{
		{Name: "xlsx", Loader: xlsx.NewWriter(cfg.ReportPath(study), logger)},
	}
	var closers []func() error

	if cfg.ResultsDB != "" {
		db, err := sqlite.Open(ctx, cfg.ResultsDB, logger)
		if err != nil {
			logger.Error("failed to open results database", "error", err, "path", cfg.ResultsDB)
			return 1
		}
		loaders = append(loaders, pipeline.NamedLoader{Name: "sqlite", Loader: db})
		closers = append(closers, db.Close)
	}

	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, pipeline.NamedLoader{Name: "kafka", Loader: writer})
		closers = append(closers, writer.Close)
		logger.Info("kafka ranking publisher enabled", "topic", cfg.KafkaRankingTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka ranking publisher disabled")
	}

	zones := pipeline.ExtLoader{
		ByExt:   map[string]pipeline.ZoneLoader{".shp": shapefile.NewLoader(logger)},
		Default: ogr.NewLoader(logger),
	}
	runner := pipeline.New(plan, store, zones, loaders, logger, metrics)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, runner, runner, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	res, runErr := runner.Run(ctx)
	if runErr == nil {
		for _, v := range res.Variables {
			if v.Err != nil {
				logger.Warn("variable incomplete", "variable", v.Variable.Name, "stage", v.Stage, "error", v.Err)
			}
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Error("close error", "error", err)
		}
	}
	if cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("metrics textfile error", "error", err, "path", cfg.MetricsTextfile)
		}
	}

	if runErr != nil {
		logger.Info("shutdown complete", "fatal", domain.IsFatal(runErr))
		return 1
	}
	logger.Info("shutdown complete", "run_id", res.RunID, "partial", res.Failed())
	return 0
}
