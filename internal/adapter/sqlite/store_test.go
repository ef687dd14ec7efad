package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "results.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testReport(runID string, at time.Time) domain.Report {
	rec := func(name string, index int, c float64, rank int) domain.ZoneRecord {
		return domain.ZoneRecord{
			Dataset: "BRASIL_ESTADO", Country: "BRASIL", AdminLevel: "Estado", Name: name, Index: index,
			Stats: map[string]domain.GridStat{
				"z_bio1":      {Mean: c, Min: c - 1, Max: c + 1, Count: 4},
				"delta_BIO14": domain.EmptyGridStat(),
			},
			ThermalStress: c, HydricStress: math.NaN(), Consolidated: c, ConsolidatedRaster: c, Rank: rank,
		}
	}
	records := []domain.ZoneRecord{rec("Parana", 3, 2.5, 1), rec("Bahia", 0, -0.5, 2)}
	return domain.Report{
		RunID:       runID,
		GeneratedAt: at,
		Mode:        domain.Global,
		Variables:   []domain.Variable{{Key: "bio1", Name: "BIO1"}},
		Baseline:    &domain.Baseline{Mean: 0.4, Std: 1.2, Count: 100},
		Ranking:     records,
		Datasets:    []domain.DatasetReport{{Key: "BRASIL_ESTADO", Records: records}},
	}
}

func TestStore_LoadReport(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.LoadReport(ctx, testReport("run-1", at)))

	ranking, err := s.Ranking(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, RankedZone{Rank: 1, Dataset: "BRASIL_ESTADO", Country: "BRASIL", AdminLevel: "Estado", Zone: "Parana", Consolidated: 2.5}, ranking[0])
	assert.Equal(t, "Bahia", ranking[1].Zone)

	var hydric sql.NullFloat64
	require.NoError(t, s.db.QueryRow(`SELECT hydric_stress FROM zone_results WHERE zone_name = 'Parana'`).Scan(&hydric))
	assert.False(t, hydric.Valid)

	var stats int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM zone_stats WHERE run_id = 'run-1'`).Scan(&stats))
	assert.Equal(t, 4, stats)
}

func TestStore_LoadReport_ReplacesRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.LoadReport(ctx, testReport("run-1", at)))
	require.NoError(t, s.LoadReport(ctx, testReport("run-1", at)))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM zone_results`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestStore_LatestRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.LoadReport(ctx, testReport("old", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, s.LoadReport(ctx, testReport("new", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))))

	id, err = s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", id)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO runs (run_id, generated_at, mode, inversion_point, variables, ranked_zones)
			VALUES ('x', '2026', 'global', 'at_delta', '', 0)`); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n))
	assert.Zero(t, n)
}
