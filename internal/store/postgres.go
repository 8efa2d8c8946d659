package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/landsift/mindthegap/internal/db"
	"github.com/landsift/mindthegap/internal/gap"
)

// PostgresStore implements DataStore and CheckpointStore against a
// PostGIS-enabled Postgres database.
type PostgresStore struct {
	pool db.Pool

	// Dataset is the schema holding per-AOI footprint tables; must be in
	// the allowlist.
	Dataset string

	// BoundaryBuffer widens the fetched boundary, in projection units, so
	// footprints just outside the mapped border still suppress edge gaps.
	BoundaryBuffer float64
}

// NewPostgresStore creates a store over an existing connection pool.
func NewPostgresStore(pool db.Pool, dataset string, boundaryBuffer float64) *PostgresStore {
	return &PostgresStore{pool: pool, Dataset: dataset, BoundaryBuffer: boundaryBuffer}
}

// FetchFootprints implements FootprintSource. It reads footprint centroids
// from the AOI's derived table, bbox-filtered when extent is non-degenerate.
func (s *PostgresStore) FetchFootprints(ctx context.Context, aoiID string, extent gap.Extent) ([]gap.Footprint, error) {
	table, err := FootprintTable(s.Dataset, aoiID)
	if err != nil {
		return nil, classify("fetch footprints", err)
	}

	var rows pgx.Rows
	if extent.Area() > 0 {
		sql := fmt.Sprintf(
			`SELECT ogc_fid::text, ST_X(ST_Centroid(geom)), ST_Y(ST_Centroid(geom))
			 FROM %s
			 WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)`,
			table,
		)
		rows, err = s.pool.Query(ctx, sql, extent.MinX, extent.MinY, extent.MaxX, extent.MaxY)
	} else {
		sql := fmt.Sprintf(
			`SELECT ogc_fid::text, ST_X(ST_Centroid(geom)), ST_Y(ST_Centroid(geom)) FROM %s`,
			table,
		)
		rows, err = s.pool.Query(ctx, sql)
	}
	if err != nil {
		return nil, classify("fetch footprints", err)
	}
	defer rows.Close()

	var footprints []gap.Footprint
	for rows.Next() {
		var id string
		var x, y float64
		if err := rows.Scan(&id, &x, &y); err != nil {
			return nil, classify("scan footprint row", err)
		}
		footprints = append(footprints, gap.Footprint{
			ID:   id,
			Geom: geom.NewPointFlat(geom.XY, []float64{x, y}),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate footprint rows", err)
	}
	return footprints, nil
}

// FetchBoundary implements FootprintSource.
func (s *PostgresStore) FetchBoundary(ctx context.Context, aoiID string) (*geom.Polygon, error) {
	if !identPattern.MatchString(aoiID) {
		return nil, classify("fetch boundary", eris.Errorf("store: AOI id %q is not a valid identifier", aoiID))
	}

	sql := fmt.Sprintf(
		`SELECT ST_AsEWKB(ST_Multi(ST_Buffer(geom, $2))) FROM %s WHERE aoi = $1`,
		boundaryTable,
	)
	var data []byte
	if err := s.pool.QueryRow(ctx, sql, aoiID, s.BoundaryBuffer).Scan(&data); err != nil {
		return nil, classify("fetch boundary", err)
	}

	boundary, err := decodeBoundary(data)
	if err != nil {
		return nil, classify("fetch boundary", err)
	}
	return boundary, nil
}

// PersistGaps implements GapSink with upsert semantics keyed on
// (tile_id, gap_index). Rows beyond the new gap count are pruned in the same
// transaction, so a retried tile that now yields fewer gaps leaves no stale
// rows behind.
func (s *PostgresStore) PersistGaps(ctx context.Context, tileID string, gaps []gap.GapPolygon) error {
	if len(gaps) == 0 {
		sql := fmt.Sprintf(`DELETE FROM %s WHERE tile_id = $1`, gapsTable)
		_, err := s.pool.Exec(ctx, sql, tileID)
		return classify("persist gaps", err)
	}

	rows := make([][]any, 0, len(gaps))
	for i, g := range gaps {
		data, err := encodeGapGeom(g.Geom)
		if err != nil {
			return classify("persist gaps", err)
		}
		rows = append(rows, []any{tileID, i, data, g.Area, g.Rectangularity})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        gapsTable,
		Columns:      []string{"tile_id", "gap_index", "geom_ewkb", "area", "rectangularity"},
		ConflictKeys: []string{"tile_id", "gap_index"},
		Prune:        fmt.Sprintf(`DELETE FROM %s WHERE tile_id = $1 AND gap_index >= $2`, gapsTable),
		PruneArgs:    []any{tileID, len(gaps)},
	}, rows)
	return classify("persist gaps", err)
}

// LoadGaps implements GapReader. Gaps come back ordered by tile and index.
func (s *PostgresStore) LoadGaps(ctx context.Context, tileIDs []string) ([]gap.GapPolygon, error) {
	if len(tileIDs) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(
		`SELECT tile_id, geom_ewkb, area, rectangularity FROM %s
		 WHERE tile_id = ANY($1) ORDER BY tile_id, gap_index`,
		gapsTable,
	)
	rows, err := s.pool.Query(ctx, sql, tileIDs)
	if err != nil {
		return nil, classify("load gaps", err)
	}
	defer rows.Close()

	var gaps []gap.GapPolygon
	for rows.Next() {
		var g gap.GapPolygon
		var data []byte
		if err := rows.Scan(&g.TileID, &data, &g.Area, &g.Rectangularity); err != nil {
			return nil, classify("scan gap row", err)
		}
		if g.Geom, err = decodeGapGeom(data); err != nil {
			return nil, classify("load gaps", err)
		}
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate gap rows", err)
	}
	return gaps, nil
}

// LoadCheckpoint implements CheckpointStore.
func (s *PostgresStore) LoadCheckpoint(ctx context.Context, runName string) (map[string]bool, error) {
	sql := fmt.Sprintf(`SELECT tile_id FROM %s WHERE run_name = $1`, checkpointTable)
	rows, err := s.pool.Query(ctx, sql, runName)
	if err != nil {
		return nil, classify("load checkpoint", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var tileID string
		if err := rows.Scan(&tileID); err != nil {
			return nil, classify("scan checkpoint row", err)
		}
		done[tileID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate checkpoint rows", err)
	}
	return done, nil
}

// AppendCheckpoint implements CheckpointStore. The insert is idempotent and
// clears any failure record left from an earlier attempt at the tile.
func (s *PostgresStore) AppendCheckpoint(ctx context.Context, runName, tileID string) error {
	sql := fmt.Sprintf(
		`INSERT INTO %s (run_name, tile_id, completed_at) VALUES ($1, $2, now())
		 ON CONFLICT (run_name, tile_id) DO NOTHING`,
		checkpointTable,
	)
	if _, err := s.pool.Exec(ctx, sql, runName, tileID); err != nil {
		return classify("append checkpoint", err)
	}

	clearSQL := fmt.Sprintf(`DELETE FROM %s WHERE run_name = $1 AND tile_id = $2`, failureTable)
	if _, err := s.pool.Exec(ctx, clearSQL, runName, tileID); err != nil {
		return classify("clear failure record", err)
	}
	return nil
}

// MarkFailed implements CheckpointStore.
func (s *PostgresStore) MarkFailed(ctx context.Context, runName, tileID, cause string) error {
	sql := fmt.Sprintf(
		`INSERT INTO %s (run_name, tile_id, cause, failed_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (run_name, tile_id) DO UPDATE SET cause = EXCLUDED.cause, failed_at = now()`,
		failureTable,
	)
	_, err := s.pool.Exec(ctx, sql, runName, tileID, cause)
	return classify("mark failed", err)
}

// LoadFailed implements CheckpointStore.
func (s *PostgresStore) LoadFailed(ctx context.Context, runName string) (map[string]string, error) {
	sql := fmt.Sprintf(`SELECT tile_id, cause FROM %s WHERE run_name = $1`, failureTable)
	rows, err := s.pool.Query(ctx, sql, runName)
	if err != nil {
		return nil, classify("load failed tiles", err)
	}
	defer rows.Close()

	failed := make(map[string]string)
	for rows.Next() {
		var tileID, cause string
		if err := rows.Scan(&tileID, &cause); err != nil {
			return nil, classify("scan failed tile row", err)
		}
		failed[tileID] = cause
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate failed tile rows", err)
	}
	return failed, nil
}

// SaveRunSummary implements CheckpointStore.
func (s *PostgresStore) SaveRunSummary(ctx context.Context, sum RunSummary) error {
	sql := fmt.Sprintf(
		`INSERT INTO %s (id, run_name, started_at, finished_at, completed, failed, skipped)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runsTable,
	)
	_, err := s.pool.Exec(ctx, sql,
		sum.RunID, sum.RunName, sum.StartedAt, sum.FinishedAt,
		sum.Completed, sum.Failed, sum.Skipped,
	)
	return classify("save run summary", err)
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS gaps;

CREATE TABLE IF NOT EXISTS gaps.detected (
	tile_id        TEXT NOT NULL,
	gap_index      INT NOT NULL,
	geom_ewkb      BYTEA NOT NULL,
	geom           geometry GENERATED ALWAYS AS (ST_GeomFromEWKB(geom_ewkb)) STORED,
	area           DOUBLE PRECISION NOT NULL,
	rectangularity DOUBLE PRECISION NOT NULL,
	detected_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tile_id, gap_index)
);

CREATE INDEX IF NOT EXISTS idx_gaps_detected_geom ON gaps.detected USING GIST (geom);

CREATE TABLE IF NOT EXISTS gaps.run_checkpoints (
	run_name     TEXT NOT NULL,
	tile_id      TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_name, tile_id)
);

CREATE TABLE IF NOT EXISTS gaps.run_failures (
	run_name  TEXT NOT NULL,
	tile_id   TEXT NOT NULL,
	cause     TEXT NOT NULL,
	failed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_name, tile_id)
);

CREATE TABLE IF NOT EXISTS gaps.runs (
	id          UUID PRIMARY KEY,
	run_name    TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	completed   INT NOT NULL,
	failed      INT NOT NULL,
	skipped     INT NOT NULL
);
`

// Migrate creates the gaps schema if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return classify("migrate", err)
}

// Close implements CheckpointStore. The pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }
