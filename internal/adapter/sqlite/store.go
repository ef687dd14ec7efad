// Package sqlite persists run summaries and zone results in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	generated_at    TEXT NOT NULL,
	mode            TEXT NOT NULL,
	inversion_point TEXT NOT NULL,
	variables       TEXT NOT NULL,
	baseline_mean   REAL,
	baseline_std    REAL,
	baseline_cells  INTEGER,
	ranked_zones    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS zone_results (
	run_id              TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	dataset             TEXT NOT NULL,
	zone_index          INTEGER NOT NULL,
	country             TEXT NOT NULL,
	admin_level         TEXT NOT NULL,
	zone_name           TEXT NOT NULL,
	rank                INTEGER,
	thermal_stress      REAL,
	hydric_stress       REAL,
	consolidated        REAL,
	consolidated_raster REAL,
	PRIMARY KEY (run_id, dataset, zone_index)
);
CREATE TABLE IF NOT EXISTS zone_stats (
	run_id     TEXT NOT NULL,
	dataset    TEXT NOT NULL,
	zone_index INTEGER NOT NULL,
	grid       TEXT NOT NULL,
	mean       REAL,
	min        REAL,
	max        REAL,
	cells      INTEGER NOT NULL,
	PRIMARY KEY (run_id, dataset, zone_index, grid),
	FOREIGN KEY (run_id, dataset, zone_index)
		REFERENCES zone_results(run_id, dataset, zone_index) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS zone_results_rank ON zone_results(run_id, rank);
`

// Store writes reports to SQLite. It implements pipeline.ReportLoader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate results db: %w", err)
	}
	logger.Info("results database ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction executes fn within a database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadReport stores the run and every dataset record in one transaction.
// Storing a run id twice replaces the earlier rows.
func (s *Store) LoadReport(ctx context.Context, rep domain.Report) error {
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, rep.RunID); err != nil {
			return err
		}
		if err := insertRun(ctx, tx, rep); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, ds := range rep.Datasets {
			for _, r := range ds.Records {
				if err := insertZone(ctx, tx, rep.RunID, r); err != nil {
					return fmt.Errorf("insert zone %s/%s: %w", r.Dataset, r.Name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	s.logger.Info("report stored", "run_id", rep.RunID, "ranked_zones", len(rep.Ranking))
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	names := make([]string, len(rep.Variables))
	for i, v := range rep.Variables {
		names[i] = v.Name
	}
	var mean, std sql.NullFloat64
	var cells sql.NullInt64
	if b := rep.Baseline; b != nil {
		mean, std = nullFloat(b.Mean), nullFloat(b.Std)
		cells = sql.NullInt64{Int64: b.Count, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, generated_at, mode, inversion_point, variables,
			baseline_mean, baseline_std, baseline_cells, ranked_zones)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.GeneratedAt.UTC().Format(time.RFC3339), rep.Mode.String(), rep.InversionPoint.String(),
		strings.Join(names, ","), mean, std, cells, len(rep.Ranking))
	return err
}

func insertZone(ctx context.Context, tx *sql.Tx, runID string, r domain.ZoneRecord) error {
	var rank sql.NullInt64
	if r.Rank > 0 {
		rank = sql.NullInt64{Int64: int64(r.Rank), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO zone_results (run_id, dataset, zone_index, country, admin_level, zone_name,
			rank, thermal_stress, hydric_stress, consolidated, consolidated_raster)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Dataset, r.Index, r.Country, r.AdminLevel, r.Name, rank,
		nullFloat(r.ThermalStress), nullFloat(r.HydricStress), nullFloat(r.Consolidated), nullFloat(r.ConsolidatedRaster))
	if err != nil {
		return err
	}
	for grid, st := range r.Stats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO zone_stats (run_id, dataset, zone_index, grid, mean, min, max, cells)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Dataset, r.Index, grid, nullFloat(st.Mean), nullFloat(st.Min), nullFloat(st.Max), st.Count)
		if err != nil {
			return fmt.Errorf("grid %s: %w", grid, err)
		}
	}
	return nil
}

// RankedZone is a stored row of the global ranking.
type RankedZone struct {
	Rank         int
	Dataset      string
	Country      string
	AdminLevel   string
	Zone         string
	Consolidated float64
}

// Ranking returns the ranked zones of a run in rank order.
func (s *Store) Ranking(ctx context.Context, runID string) ([]RankedZone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, dataset, country, admin_level, zone_name, consolidated
		FROM zone_results
		WHERE run_id = ? AND rank IS NOT NULL
		ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	var out []RankedZone
	for rows.Next() {
		var z RankedZone
		if err := rows.Scan(&z.Rank, &z.Dataset, &z.Country, &z.AdminLevel, &z.Zone, &z.Consolidated); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// LatestRun returns the id of the most recently generated run, or "" when
// the database holds none.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY generated_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}

// nullFloat maps non-finite values to NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
