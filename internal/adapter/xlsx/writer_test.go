package xlsx

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testReport() domain.Report {
	vars := []domain.Variable{{Key: "bio1", Name: "BIO1", Group: domain.GroupThermal}}
	rec := func(name string, z float64, rank int) domain.ZoneRecord {
		return domain.ZoneRecord{
			Dataset: "URUGUAY_DEPTO", Country: "URUGUAY", AdminLevel: "Departamento", Name: name,
			Stats: map[string]domain.GridStat{
				"z_bio1":     {Mean: z, Min: z, Max: z, Count: 1},
				"delta_BIO1": {Mean: z + 2, Min: z + 2, Max: z + 2, Count: 1},
			},
			ThermalStress: z, HydricStress: math.NaN(), Consolidated: z, Rank: rank,
		}
	}
	records := []domain.ZoneRecord{rec("Salto", 1, 1), rec("Rivera", -1, 2)}
	return domain.Report{
		RunID:     "run-1",
		Variables: vars,
		Ranking:   records,
		Datasets: []domain.DatasetReport{{
			Key: "URUGUAY_DEPTO", Country: "URUGUAY", AdminLevel: "Departamento",
			Sheet: "URUGUAY (Dptos)", Records: records,
		}},
	}
}

func TestWriter_LoadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "Reporte_Hotspots_Zonal_MultiPais.xlsx")
	w := NewWriter(path, slog.New(slog.DiscardHandler))

	require.NoError(t, w.LoadReport(context.Background(), testReport()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{report.GlobalSheetName, "URUGUAY (Dptos)"}, f.GetSheetList())

	rows, err := f.GetRows(report.GlobalSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "RANK", rows[0][0])
	assert.Equal(t, []string{"1", "URUGUAY", "Departamento", "Salto"}, rows[1][:4])
	assert.Equal(t, "Rivera", rows[2][3])
	// NaN hydric stress is left blank.
	assert.Empty(t, rows[1][5])
}

func TestBuild_SheetPerEntry(t *testing.T) {
	f, err := Build([]report.Sheet{
		{Name: "A", Columns: []string{"x"}, Rows: [][]any{{1.5}}},
		{Name: "B", Columns: []string{"y"}},
	})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"A", "B"}, f.GetSheetList())
	v, err := f.GetCellValue("A", "A2")
	require.NoError(t, err)
	assert.Equal(t, "1.5", v)
}

func TestWriter_LoadReport_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.xlsx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWriter(path, slog.New(slog.DiscardHandler)).LoadReport(ctx, testReport())
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, path)
}
