package pipeline

import (
	"fmt"
	"runtime"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/config"
	"github.com/FelipeSBarros/Hospots-Climaticos/internal/engine"
)

// NewPlan resolves a validated study into a Plan whose derived grids use the
// store extension ext.
func NewPlan(s *config.Study, ext string) (Plan, error) {
	vars, err := s.DomainVariables()
	if err != nil {
		return Plan{}, err
	}
	mode, err := s.Mode()
	if err != nil {
		return Plan{}, err
	}
	point, err := s.Point()
	if err != nil {
		return Plan{}, err
	}

	p := Plan{
		Variables:      vars,
		Mode:           mode,
		InversionPoint: point,
		NoData:         s.NoData,
		Layout:         engine.Layout{Dir: s.OutputDir, Ext: ext},
		NormalizationZones: ZoneSource{
			Dataset: "NORMALIZATION",
			Path:    s.Normalization.Zones.Path,
			Layer:   s.Normalization.Zones.Layer,
			Field:   s.Normalization.Zones.Field,
		},
		ZonalWorkers: min(len(s.Datasets), runtime.NumCPU()),
	}

	reports := s.DatasetReports()
	for i, d := range s.Datasets {
		if d.Path == "" {
			return Plan{}, fmt.Errorf("dataset %s has no path", d.Key)
		}
		p.Datasets = append(p.Datasets, Dataset{
			Report: reports[i],
			Source: ZoneSource{
				Dataset: d.Key,
				Country: reports[i].Country,
				Level:   d.Level,
				Path:    d.Path,
				Layer:   d.Layer,
				Field:   d.Field,
			},
		})
	}
	return p, nil
}
