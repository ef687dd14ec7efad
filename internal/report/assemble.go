package report

import (
	"log/slog"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
)

// Input is what a finished run hands to Assemble.
type Input struct {
	RunID          string
	Mode           domain.NormalizationMode
	InversionPoint domain.InversionPoint
	Variables      []domain.Variable
	Baseline       *domain.Baseline

	// Datasets carry their zone records in Records, unranked and unfiltered.
	Datasets []domain.DatasetReport
}

// Assemble ranks every zone across datasets and builds the report. Records
// without a consolidated index are left out of the ranking and the dataset
// listings.
func Assemble(in Input, logger *slog.Logger) domain.Report {
	rep := domain.Report{
		RunID:          in.RunID,
		GeneratedAt:    domain.Now(),
		Mode:           in.Mode,
		InversionPoint: in.InversionPoint,
		Variables:      in.Variables,
		Baseline:       in.Baseline,
	}

	var all []domain.ZoneRecord
	for _, ds := range in.Datasets {
		all = append(all, ds.Records...)
	}
	rep.Ranking = Rank(all)
	if dropped := len(all) - len(rep.Ranking); dropped > 0 {
		logger.Warn("zones without consolidated index left out of ranking", "dropped", dropped, "ranked", len(rep.Ranking))
	}

	ranks := make(map[zoneKey]int, len(rep.Ranking))
	for _, r := range rep.Ranking {
		ranks[keyOf(r)] = r.Rank
	}

	for _, ds := range in.Datasets {
		out := ds
		out.Records = nil
		for _, r := range SortDescending(ds.Records) {
			r.Rank = ranks[keyOf(r)]
			out.Records = append(out.Records, r)
		}
		if out.Sheet == "" {
			out.Sheet = DefaultSheetName(out.Key)
		}
		rep.Datasets = append(rep.Datasets, out)

		if !out.Radar {
			continue
		}
		sel, ok := SelectRadar(out)
		if !ok {
			logger.Warn("not enough ranked zones for radar comparison",
				"dataset", out.Key, "zones", len(out.Records), "required", RadarZones)
			continue
		}
		rep.Radar = append(rep.Radar, sel)
	}
	return rep
}

type zoneKey struct {
	dataset string
	index   int
}

func keyOf(r domain.ZoneRecord) zoneKey { return zoneKey{r.Dataset, r.Index} }
