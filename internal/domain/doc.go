// Package domain models the climate hotspot ranking: bioclimatic variables,
// normalization and inversion policies, zone records, and the error taxonomy
// shared by every stage of the pipeline.
//
// # Data Source
//
// Variables are WorldClim 2.1 bioclimatic layers (30 arc-second). Each
// variable has a historical grid (1970–2000) and a future projection grid
// (e.g. IPSL-CM6A-LR ssp585), already clipped to the study area and aligned
// on the same pixel grid before this module sees them.
//
// Default variables:
//
//	BIO1   annual mean temperature             thermal
//	BIO5   max temperature of warmest month    thermal
//	BIO14  precipitation of driest month       hydric, inverted
//	BIO15  precipitation seasonality           hydric
//
// # Sign Conventions
//
// Delta is future minus historical. A larger delta must mean more adverse for
// every variable, so variables where a decrease is adverse (less rain in the
// driest month) carry Invert. The sign flip happens exactly once, either on
// the delta grid (AtDelta) or on the Z contribution when indices are summed
// (AtAggregation):
//
//	AtDelta:        delta = -(fut - hist)      composite = Σ z
//	AtAggregation:  delta =   fut - hist       composite = Σ sign·z
//
// # Nodata
//
// Inputs may carry any nodata value; derived grids always use one sentinel
// (-9999 by default) stored as float32. A cell is invalid when either input is
// nodata or the arithmetic is not finite. Composite cells are valid only when
// all contributing Z cells are valid.
//
// # Ranking
//
// Zone indices are recomputed from per-variable zonal Z means, not read back
// from the composite grid (see [ZoneRecord.ConsolidatedRaster]). Zones without
// a finite consolidated index are dropped before ranks 1..N are assigned.
package domain
