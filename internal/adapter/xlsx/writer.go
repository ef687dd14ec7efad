// Package xlsx writes the report workbook.
package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/report"
	"github.com/xuri/excelize/v2"
)

// Writer saves a report as a multi-sheet workbook.
// It implements pipeline.ReportLoader.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer that saves workbooks to path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// LoadReport writes every sheet of report.Workbook and replaces the file at
// the writer's path.
func (w *Writer) LoadReport(ctx context.Context, rep domain.Report) error {
	sheets := report.Workbook(rep)
	f, err := Build(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("report dir: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save report %s: %w", w.path, err)
	}
	w.logger.Info("report workbook written", "path", w.path, "sheets", len(sheets), "ranked_zones", len(rep.Ranking))
	return nil
}

// Build lays the sheets out in a new workbook. The first sheet is active and
// every sheet has a bold, frozen header row.
func Build(sheets []report.Sheet) (*excelize.File, error) {
	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	defaultSheet := f.GetSheetName(0)
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, s.Name); err != nil {
				f.Close()
				return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		if err := writeSheet(f, s, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, s report.Sheet, header int) error {
	cols := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c
	}
	if err := f.SetSheetRow(s.Name, "A1", &cols); err != nil {
		return err
	}
	if err := f.SetRowStyle(s.Name, 1, 1, header); err != nil {
		return err
	}
	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
			return err
		}
	}
	return f.SetPanes(s.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
