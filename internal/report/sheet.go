package report

import (
	"math"
	"strconv"
	"strings"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
)

// MaxSheetName is the longest sheet name spreadsheet applications accept.
const MaxSheetName = 31

// GlobalSheetName is the title of the cross-country ranking sheet.
const GlobalSheetName = "Ranking Global de Riesgo"

// RadarSheetName is the title of the radar selection sheet.
const RadarSheetName = "Radar"

// Sheet is one table of the report workbook. Missing numbers are nil cells.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Workbook lays out rep as sheets: the global ranking, one sheet per dataset,
// and the radar selections when there are any.
func Workbook(rep domain.Report) []Sheet {
	sheets := []Sheet{GlobalSheet(rep)}
	used := map[string]bool{strings.ToLower(sheets[0].Name): true}
	for _, ds := range rep.Datasets {
		s := DatasetSheet(ds, rep.Variables)
		s.Name = uniqueName(s.Name, used)
		sheets = append(sheets, s)
	}
	if len(rep.Radar) > 0 {
		s := RadarSheet(rep.Radar, rep.Variables)
		s.Name = uniqueName(s.Name, used)
		sheets = append(sheets, s)
	}
	return sheets
}

func identityColumns() []string {
	return []string{"COUNTRY", "ADMIN_LEVEL", "ZONE_NAME", "thermal_stress", "hydric_stress", "consolidated"}
}

func identityCells(r domain.ZoneRecord) []any {
	return []any{r.Country, r.AdminLevel, r.Name, num(r.ThermalStress), num(r.HydricStress), num(r.Consolidated)}
}

// GlobalSheet is the ranking of every zone across datasets.
func GlobalSheet(rep domain.Report) Sheet {
	cols := append([]string{"RANK"}, identityColumns()...)
	for _, v := range rep.Variables {
		cols = append(cols, v.ZGridName())
	}
	for _, v := range rep.Variables {
		cols = append(cols, v.DeltaGridName())
	}

	s := Sheet{Name: GlobalSheetName, Columns: cols}
	for _, r := range rep.Ranking {
		row := append([]any{r.Rank}, identityCells(r)...)
		for _, v := range rep.Variables {
			row = append(row, num(r.Mean(v.ZGridName())))
		}
		for _, v := range rep.Variables {
			row = append(row, num(r.Mean(v.DeltaGridName())))
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

// DatasetSheet lists one dataset's zones with the mean, min, and max of every
// derived grid, and the zonal mean of the composite grid.
func DatasetSheet(ds domain.DatasetReport, vars []domain.Variable) Sheet {
	var grids []string
	for _, v := range vars {
		grids = append(grids, v.DeltaGridName())
	}
	for _, v := range vars {
		grids = append(grids, v.ZGridName())
	}

	cols := identityColumns()
	for _, g := range grids {
		cols = append(cols, g, g+"_min", g+"_max")
	}
	cols = append(cols, domain.CompositeGridName)

	name := ds.Sheet
	if name == "" {
		name = DefaultSheetName(ds.Key)
	}
	s := Sheet{Name: SheetName(name), Columns: cols}
	for _, r := range SortDescending(ds.Records) {
		row := identityCells(r)
		for _, g := range grids {
			st, ok := r.Stats[g]
			if !ok {
				st = domain.EmptyGridStat()
			}
			row = append(row, num(st.Mean), num(st.Min), num(st.Max))
		}
		row = append(row, num(r.ConsolidatedRaster))
		s.Rows = append(s.Rows, row)
	}
	return s
}

// RadarSheet lists the zones picked for each radar comparison with their
// per-variable Z means.
func RadarSheet(sel []domain.RadarSelection, vars []domain.Variable) Sheet {
	cols := []string{"RADAR", "SIDE", "POSITION", "ZONE_NAME", "consolidated"}
	for _, v := range vars {
		cols = append(cols, v.ZGridName())
	}
	s := Sheet{Name: RadarSheetName, Columns: cols}
	add := func(label, side string, records []domain.ZoneRecord) {
		for i, r := range records {
			row := []any{label, side, i + 1, r.Name, num(r.Consolidated)}
			for _, v := range vars {
				row = append(row, num(r.Mean(v.ZGridName())))
			}
			s.Rows = append(s.Rows, row)
		}
	}
	for _, r := range sel {
		add(r.Label, "highest", r.Highest)
		add(r.Label, "lowest", r.Lowest)
	}
	return s
}

// DefaultSheetName derives a sheet name from a dataset key such as
// "PARAGUAY_DEPTO" -> "PARAGUAY (Dptos)".
func DefaultSheetName(key string) string {
	r := strings.NewReplacer("_DEPTO", " (Dptos)", "_ESTADO", " (Ests)", "_PROV", " (Prov)", "_REGION", " (Regiones)")
	return r.Replace(key)
}

// SheetName makes name acceptable as a sheet title.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Sheet"
	}
	if runes := []rune(name); len(runes) > MaxSheetName {
		name = string(runes[:MaxSheetName])
	}
	return name
}

func uniqueName(name string, used map[string]bool) string {
	base, candidate := name, name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := "~" + strconv.Itoa(i)
		runes := []rune(base)
		if len(runes)+len(suffix) > MaxSheetName {
			runes = runes[:MaxSheetName-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// num turns missing values into nil cells.
func num(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
