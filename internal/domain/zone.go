package domain

import (
	"math"
	"time"
)

// GridStat is the zonal summary of one grid over one zone's footprint.
// Mean, Min, and Max are NaN when the footprint holds no valid cell.
type GridStat struct {
	Mean  float64
	Min   float64
	Max   float64
	Count int
}

// EmptyGridStat is the summary of a zone with no valid overlap.
func EmptyGridStat() GridStat {
	return GridStat{Mean: math.NaN(), Min: math.NaN(), Max: math.NaN()}
}

// ZoneRecord is the per-zone output of the zonal aggregation.
type ZoneRecord struct {
	Dataset    string // dataset key, e.g. "PARAGUAY_DEPTO"
	Country    string // e.g. "PARAGUAY"
	AdminLevel string // e.g. "Departamento"
	Name       string
	Index      int // position of the polygon in its dataset

	Stats map[string]GridStat // keyed by grid name, e.g. "z_bio1"

	ThermalStress float64
	HydricStress  float64
	Consolidated  float64

	// ConsolidatedRaster is the zonal mean of the composite grid. It follows a
	// different rounding path than Consolidated and is not used for ranking.
	ConsolidatedRaster float64

	Rank int // 0 until ranked
}

// Mean returns the zonal mean of grid, or NaN when absent.
func (r ZoneRecord) Mean(grid string) float64 {
	s, ok := r.Stats[grid]
	if !ok {
		return math.NaN()
	}
	return s.Mean
}

// Ranked reports whether the record can take part in the ranking.
func (r ZoneRecord) Ranked() bool {
	return !math.IsNaN(r.Consolidated) && !math.IsInf(r.Consolidated, 0)
}

// DeriveIndices fills the thermal, hydric, and consolidated indices of rec from
// its per-variable zonal Z means. A missing Z mean yields NaN for every index it
// contributes to.
func DeriveIndices(rec ZoneRecord, vars []Variable, point InversionPoint) ZoneRecord {
	var thermal, hydric, total float64
	for _, v := range vars {
		z := rec.Mean(v.ZGridName()) * v.AggregationSign(point)
		switch v.Group {
		case GroupThermal:
			thermal += z
		case GroupHydric:
			hydric += z
		}
		total += z
	}
	if !hasGroup(vars, GroupThermal) {
		thermal = math.NaN()
	}
	if !hasGroup(vars, GroupHydric) {
		hydric = math.NaN()
	}
	if len(vars) == 0 {
		total = math.NaN()
	}
	rec.ThermalStress = thermal
	rec.HydricStress = hydric
	rec.Consolidated = total
	rec.ConsolidatedRaster = rec.Mean(CompositeGridName)
	return rec
}

func hasGroup(vars []Variable, g Group) bool {
	for _, v := range vars {
		if v.Group == g {
			return true
		}
	}
	return false
}

// Baseline is the mean/std a delta was normalized against.
type Baseline struct {
	Mean  float64
	Std   float64
	Count int64
}

// DatasetReport groups the zone records of one vector dataset.
type DatasetReport struct {
	Key        string
	Country    string
	AdminLevel string
	Sheet      string
	Radar      bool
	Records    []ZoneRecord // ranked rows only, sorted by Consolidated descending
}

// RadarSelection holds the highest and lowest ranked zones of one dataset.
type RadarSelection struct {
	Dataset string
	Label   string
	Highest []ZoneRecord
	Lowest  []ZoneRecord
}

// Report is everything the report loaders consume.
type Report struct {
	RunID          string
	GeneratedAt    time.Time
	Mode           NormalizationMode
	InversionPoint InversionPoint
	Variables      []Variable
	Baseline       *Baseline // nil in PerZone mode
	Ranking        []ZoneRecord
	Datasets       []DatasetReport
	Radar          []RadarSelection
}
