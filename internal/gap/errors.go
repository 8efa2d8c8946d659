package gap

import "fmt"

// InvalidParameterError reports a detection or tuning parameter outside its
// declared valid range. It is raised before any computation starts and is
// never retried.
type InvalidParameterError struct {
	Param  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Param, e.Value, e.Reason)
}

// EmptyInputError reports a Region missing its footprints or boundary.
type EmptyInputError struct {
	Missing string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("region has no %s", e.Missing)
}

// TuningExhaustedError reports that the tuner's search space yielded no valid
// configuration. Callers fall back to a default TuneConfig or fail the tile.
type TuningExhaustedError struct {
	// Candidates is the number of configurations considered.
	Candidates int
}

func (e *TuningExhaustedError) Error() string {
	return fmt.Sprintf("tuning exhausted: no valid configuration among %d candidates", e.Candidates)
}
