package domain

import (
	"fmt"
	"strings"
)

// Group classifies a variable into the sub-index it contributes to.
type Group string

const (
	GroupThermal Group = "thermal"
	GroupHydric  Group = "hydric"
)

// Variable is one bioclimatic indicator compared between a historical and a future grid.
type Variable struct {
	Key         string // lower-case identifier, e.g. "bio14"
	Index       int    // WorldClim band number, e.g. 14
	Name        string // display name, e.g. "BIO14"
	Description string
	Group       Group
	Invert      bool // true when lower values mean more risk
	HistPath    string
	FutPath     string
}

// NormalizationMode selects the baseline used to turn deltas into Z-scores.
type NormalizationMode int

const (
	// Global pools every valid delta of every variable into one mean/std.
	Global NormalizationMode = iota
	// PerZone uses the mean/std of each variable inside each normalization zone.
	PerZone
)

func (m NormalizationMode) String() string {
	switch m {
	case Global:
		return "global"
	case PerZone:
		return "per_zone"
	default:
		return fmt.Sprintf("NormalizationMode(%d)", int(m))
	}
}

// ParseNormalizationMode accepts "global" or "per_zone" (case-insensitive, "-" allowed).
func ParseNormalizationMode(s string) (NormalizationMode, error) {
	switch normalizeEnum(s) {
	case "global":
		return Global, nil
	case "per_zone", "perzone", "zonal":
		return PerZone, nil
	default:
		return 0, fmt.Errorf("unknown normalization mode %q", s)
	}
}

// InversionPoint selects where the sign of inverted variables is flipped.
type InversionPoint int

const (
	// AtDelta negates the delta grid of inverted variables.
	AtDelta InversionPoint = iota
	// AtAggregation keeps raw deltas and negates the Z contribution in the composite and zonal indices.
	AtAggregation
)

func (p InversionPoint) String() string {
	switch p {
	case AtDelta:
		return "at_delta"
	case AtAggregation:
		return "at_aggregation"
	default:
		return fmt.Sprintf("InversionPoint(%d)", int(p))
	}
}

// ParseInversionPoint accepts "at_delta" or "at_aggregation".
func ParseInversionPoint(s string) (InversionPoint, error) {
	switch normalizeEnum(s) {
	case "at_delta", "delta":
		return AtDelta, nil
	case "at_aggregation", "aggregation":
		return AtAggregation, nil
	default:
		return 0, fmt.Errorf("unknown inversion point %q", s)
	}
}

func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// DeltaSign is the factor applied to valid delta cells of v.
func (v Variable) DeltaSign(p InversionPoint) float32 {
	if v.Invert && p == AtDelta {
		return -1
	}
	return 1
}

// AggregationSign is the factor applied to v's Z-score when summing indices.
func (v Variable) AggregationSign(p InversionPoint) float64 {
	if v.Invert && p == AtAggregation {
		return -1
	}
	return 1
}

// DeltaGridName is the zonal column name of v's delta grid, e.g. "delta_BIO1".
func (v Variable) DeltaGridName() string { return "delta_" + v.Name }

// ZGridName is the zonal column name of v's Z-score grid, e.g. "z_bio1".
func (v Variable) ZGridName() string { return "z_" + strings.ToLower(v.Key) }

// CompositeGridName is the zonal column name of the composite index grid.
const CompositeGridName = "consolidated_raster"

// Output file stems for derived grids.
func DeltaFileStem(v Variable) string { return "DELTA_" + v.Name }
func ZFileStem(v Variable) string     { return "Z_" + v.Name }
func MeanFileStem(v Variable) string  { return "MEAN_" + v.Name }
func StdFileStem(v Variable) string   { return "STD_" + v.Name }

const CompositeFileStem = "INDICE_IMPACTO_AGREGADO"
