package pipeline

import (
	"time"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
)

// Stage names a step of a run.
type Stage string

const (
	StageDelta     Stage = "delta"
	StageNormalize Stage = "normalize"
	StageComposite Stage = "composite"
	StageZonal     Stage = "zonal"
	StageLoad      Stage = "load"
)

// VariableOutcome reports how far one variable got. Stage is the last stage
// attempted; Err is nil when the variable reached the zonal stage.
type VariableOutcome struct {
	Variable domain.Variable
	Stage    Stage
	Err      error
}

// DatasetOutcome reports the zonal aggregation of one dataset.
type DatasetOutcome struct {
	Dataset     string
	Zones       int
	EmptyZones  int // zones without any valid cell
	FailedZones int
	Err         error
}

// LoaderOutcome reports one report loader.
type LoaderOutcome struct {
	Loader string
	Err    error
}

// Result is everything a run produced, including per-item failures.
type Result struct {
	RunID     string
	Report    domain.Report
	Variables []VariableOutcome
	Composite error
	Datasets  []DatasetOutcome
	Loaders   []LoaderOutcome
}

// Failed reports whether any item of the run failed.
func (r Result) Failed() bool {
	if r.Composite != nil {
		return true
	}
	for _, v := range r.Variables {
		if v.Err != nil {
			return true
		}
	}
	for _, d := range r.Datasets {
		if d.Err != nil || d.FailedZones > 0 {
			return true
		}
	}
	for _, l := range r.Loaders {
		if l.Err != nil {
			return true
		}
	}
	return false
}

// Status is a snapshot of the runner's progress.
type Status struct {
	RunID       string    `json:"run_id,omitempty"`
	Running     bool      `json:"running"`
	Stage       Stage     `json:"stage,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	RankedZones int       `json:"ranked_zones"`
	Error       string    `json:"error,omitempty"`
}
