// Package store provides the spatial data-store interfaces the detection
// core consumes: footprint/boundary fetch, gap persistence, and the durable
// run checkpoint, with Postgres/PostGIS, SQLite, and shapefile backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/landsift/mindthegap/internal/gap"
	"github.com/landsift/mindthegap/internal/resilience"
)

// FootprintSource fetches detection inputs scoped to an AOI or tile extent.
type FootprintSource interface {
	// FetchFootprints returns the footprint centroids of an AOI dataset
	// intersecting the extent. A zero extent fetches everything.
	FetchFootprints(ctx context.Context, aoiID string, extent gap.Extent) ([]gap.Footprint, error)

	// FetchBoundary returns the AOI boundary polygon.
	FetchBoundary(ctx context.Context, aoiID string) (*geom.Polygon, error)
}

// GapSink persists detection results. PersistGaps has upsert semantics and is
// safe to call once per tile, including on retried tiles.
type GapSink interface {
	PersistGaps(ctx context.Context, tileID string, gaps []gap.GapPolygon) error
}

// GapReader loads persisted gaps back out, tile ids in GapPolygon.TileID.
type GapReader interface {
	LoadGaps(ctx context.Context, tileIDs []string) ([]gap.GapPolygon, error)
}

// DataStore is the full spatial store used by tiled runs.
type DataStore interface {
	FootprintSource
	GapSink
	GapReader
}

// RunSummary is the persisted record of one tiled run.
type RunSummary struct {
	RunID      string
	RunName    string
	StartedAt  time.Time
	FinishedAt time.Time
	Completed  int
	Failed     int
	Skipped    int
}

// CheckpointStore records tile completion durably so interrupted runs can
// resume. The checkpoint is append-only: one entry per completed tile,
// written only after that tile's results are persisted.
type CheckpointStore interface {
	// LoadCheckpoint returns the set of tile ids completed for a run.
	LoadCheckpoint(ctx context.Context, runName string) (map[string]bool, error)

	// AppendCheckpoint marks a tile complete. It also clears any earlier
	// failure record for the tile.
	AppendCheckpoint(ctx context.Context, runName, tileID string) error

	// MarkFailed records a tile as failed with its cause.
	MarkFailed(ctx context.Context, runName, tileID, cause string) error

	// LoadFailed returns failed tile ids mapped to their recorded cause.
	LoadFailed(ctx context.Context, runName string) (map[string]string, error)

	// SaveRunSummary records the end-of-run summary.
	SaveRunSummary(ctx context.Context, s RunSummary) error

	// Migrate creates the checkpoint schema if missing.
	Migrate(ctx context.Context) error

	Close() error
}

// ErrorKind classifies a data-store failure for retry purposes.
type ErrorKind int

const (
	// KindTransient covers connection and timeout failures; retried with
	// bounded backoff.
	KindTransient ErrorKind = iota
	// KindPermanent covers schema mismatches and missing tables; fails
	// the tile immediately.
	KindPermanent
)

// DataStoreError wraps a store failure with its operation and retry class.
type DataStoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *DataStoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *DataStoreError) Unwrap() error {
	return e.Err
}

// classify wraps err as a DataStoreError, deriving the retry class from the
// underlying failure. Returns nil for a nil err.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindPermanent
	if resilience.IsTransient(err) {
		kind = KindTransient
	}
	return &DataStoreError{Op: op, Kind: kind, Err: err}
}

// IsTransient reports whether a store error is safe to retry.
func IsTransient(err error) bool {
	var dse *DataStoreError
	if errors.As(err, &dse) {
		return dse.Kind == KindTransient
	}
	return resilience.IsTransient(err)
}
