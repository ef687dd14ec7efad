// Package report ranks zone records and shapes them into the tabular report
// consumed by the loaders.
package report

import (
	"sort"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
)

// Rank drops records without a finite consolidated index and returns the rest
// sorted by consolidated index, highest first, with ranks 1..N. Ties keep
// their input order.
func Rank(records []domain.ZoneRecord) []domain.ZoneRecord {
	out := SortDescending(records)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// SortDescending returns the ranked-eligible records sorted by consolidated
// index, highest first, without assigning ranks.
func SortDescending(records []domain.ZoneRecord) []domain.ZoneRecord {
	out := make([]domain.ZoneRecord, 0, len(records))
	for _, r := range records {
		if r.Ranked() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Consolidated > out[j].Consolidated
	})
	return out
}
