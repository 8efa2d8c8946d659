package store

import (
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"
)

// Fixed table names used by the store. Only the footprints table is derived
// from run parameters, and only through FootprintTable below.
const (
	boundaryTable   = "boundary.admin0"
	gapsTable       = "gaps.detected"
	checkpointTable = "gaps.run_checkpoints"
	failureTable    = "gaps.run_failures"
	runsTable       = "gaps.runs"
)

// allowedDatasets is the allowlist of schemas footprint tables may live in.
// Deriving the table from (dataset, AOI) through this gate is what keeps a
// mistyped AOI name from ever targeting an unrelated table.
var allowedDatasets = map[string]bool{
	"footprints": true,
	"microsoft":  true,
	"google":     true,
	"osm":        true,
}

// identPattern matches a safe, unquoted SQL identifier.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// FootprintTable derives the footprints table name for an AOI by convention:
// the dataset schema composed with the AOI identifier. It is a pure function
// and rejects anything outside the allowlist or identifier grammar before any
// SQL is built from it.
func FootprintTable(dataset, aoiID string) (string, error) {
	if !allowedDatasets[dataset] {
		return "", eris.Errorf("store: dataset %q is not in the allowlist", dataset)
	}
	if !identPattern.MatchString(aoiID) {
		return "", eris.Errorf("store: AOI id %q is not a valid identifier", aoiID)
	}
	return fmt.Sprintf("%s.%s", dataset, aoiID), nil
}
