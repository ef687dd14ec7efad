package domain_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"github.com/stretchr/testify/assert"
)

func testVariables() []domain.Variable {
	return []domain.Variable{
		{Key: "bio1", Name: "BIO1", Group: domain.GroupThermal},
		{Key: "bio5", Name: "BIO5", Group: domain.GroupThermal},
		{Key: "bio14", Name: "BIO14", Group: domain.GroupHydric, Invert: true},
		{Key: "bio15", Name: "BIO15", Group: domain.GroupHydric},
	}
}

func recordWithZ(z1, z5, z14, z15, composite float64) domain.ZoneRecord {
	return domain.ZoneRecord{Stats: map[string]domain.GridStat{
		"z_bio1":                 {Mean: z1},
		"z_bio5":                 {Mean: z5},
		"z_bio14":                {Mean: z14},
		"z_bio15":                {Mean: z15},
		domain.CompositeGridName: {Mean: composite},
	}}
}

func TestDeriveIndices_AtDelta(t *testing.T) {
	rec := domain.DeriveIndices(recordWithZ(1, 2, 3, 4, 9.5), testVariables(), domain.AtDelta)

	assert.InDelta(t, 3.0, rec.ThermalStress, 1e-12)
	assert.InDelta(t, 7.0, rec.HydricStress, 1e-12)
	assert.InDelta(t, 10.0, rec.Consolidated, 1e-12)
	assert.InDelta(t, 9.5, rec.ConsolidatedRaster, 1e-12, "raster mean kept apart from the direct sum")
	assert.True(t, rec.Ranked())
}

func TestDeriveIndices_AtAggregationFlipsInvertedVariable(t *testing.T) {
	rec := domain.DeriveIndices(recordWithZ(1, 2, 3, 4, 0), testVariables(), domain.AtAggregation)

	assert.InDelta(t, 3.0, rec.ThermalStress, 1e-12)
	assert.InDelta(t, 1.0, rec.HydricStress, 1e-12)
	assert.InDelta(t, 4.0, rec.Consolidated, 1e-12)
}

func TestDeriveIndices_MissingZMeanPropagatesNaN(t *testing.T) {
	rec := recordWithZ(1, 2, math.NaN(), 4, 0)
	rec = domain.DeriveIndices(rec, testVariables(), domain.AtDelta)

	assert.InDelta(t, 3.0, rec.ThermalStress, 1e-12)
	assert.True(t, math.IsNaN(rec.HydricStress))
	assert.True(t, math.IsNaN(rec.Consolidated))
	assert.False(t, rec.Ranked())

	delete(rec.Stats, "z_bio1")
	rec = domain.DeriveIndices(rec, testVariables(), domain.AtDelta)
	assert.True(t, math.IsNaN(rec.ThermalStress))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, domain.IsFatal(fmt.Errorf("normalize: %w", domain.ErrEmptyPool)))
	assert.True(t, domain.IsFatal(domain.ErrZeroVariance))
	assert.False(t, domain.IsFatal(fmt.Errorf("BIO1: %w", domain.ErrSourceUnavailable)))
	assert.False(t, domain.IsFatal(domain.ErrIncompatibleGrid))
	assert.False(t, domain.IsFatal(errors.New("other")))
}
