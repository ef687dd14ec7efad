package report

import (
	"fmt"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
)

// RadarZones is how many zones each side of a radar comparison holds.
const RadarZones = 3

// SelectRadar picks the RadarZones highest and lowest zones of a dataset.
// Highest is ordered from the top down, Lowest from the bottom up. ok is false
// when the dataset has fewer than RadarZones ranked zones.
func SelectRadar(ds domain.DatasetReport) (sel domain.RadarSelection, ok bool) {
	sorted := SortDescending(ds.Records)
	if len(sorted) < RadarZones {
		return domain.RadarSelection{}, false
	}
	sel = domain.RadarSelection{
		Dataset: ds.Key,
		Label:   fmt.Sprintf("%s (%s)", ds.Country, ds.AdminLevel),
		Highest: append([]domain.ZoneRecord(nil), sorted[:RadarZones]...),
	}
	for i := len(sorted) - 1; i >= len(sorted)-RadarZones; i-- {
		sel.Lowest = append(sel.Lowest, sorted[i])
	}
	return sel, true
}
