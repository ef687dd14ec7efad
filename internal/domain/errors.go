package domain

import "errors"

var (
	// ErrSourceUnavailable marks a grid or vector file that is missing or unreadable.
	// Fatal to the item being processed only.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrIncompatibleGrid marks grids whose shape, transform, or CRS differ.
	// Fatal to the variable (or composite) being processed only.
	ErrIncompatibleGrid = errors.New("incompatible grids")

	// ErrEmptyPool means no valid delta value exists for global normalization.
	ErrEmptyPool = errors.New("no valid delta values for global normalization")

	// ErrZeroVariance means the pooled deltas have zero standard deviation.
	ErrZeroVariance = errors.New("pooled delta values have zero standard deviation")

	// ErrDegenerateZone marks zones with an empty footprint or zero variance.
	// Never returned to callers of the pipeline; used to tag diagnostics.
	ErrDegenerateZone = errors.New("degenerate zone")
)

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEmptyPool) || errors.Is(err, ErrZeroVariance)
}
