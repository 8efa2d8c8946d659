package tilerun

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/landsift/mindthegap/internal/gap"
	"github.com/landsift/mindthegap/internal/resilience"
	"github.com/landsift/mindthegap/internal/store"
)

// fakeStore is an in-memory DataStore and CheckpointStore with injectable
// per-tile failures. Footprints fully cover any requested extent at 0.05
// resolution, except for tiles listed in gapTiles, which get one empty cell.
type fakeStore struct {
	mu sync.Mutex

	boundary *geom.Polygon
	tileSize float64
	gapTiles map[string]bool

	fetchErrs   map[string][]error
	persistErrs map[string][]error

	fetchCalls int
	persisted  map[string][]gap.GapPolygon

	checkpoints map[string]map[string]bool
	failures    map[string]map[string]string
	summaries   []store.RunSummary
}

func newFakeStore(boundary *geom.Polygon, tileSize float64) *fakeStore {
	return &fakeStore{
		boundary:    boundary,
		tileSize:    tileSize,
		gapTiles:    map[string]bool{},
		fetchErrs:   map[string][]error{},
		persistErrs: map[string][]error{},
		persisted:   map[string][]gap.GapPolygon{},
		checkpoints: map[string]map[string]bool{},
		failures:    map[string]map[string]string{},
	}
}

// tileIDFor recovers the tile id from a fetch extent.
func (f *fakeStore) tileIDFor(extent gap.Extent) string {
	col := int(math.Round(extent.MinX / f.tileSize))
	row := int(math.Round(extent.MinY / f.tileSize))
	return fmt.Sprintf("tile_%04d_%04d", col, row)
}

func popErr(m map[string][]error, key string) error {
	if errs := m[key]; len(errs) > 0 {
		m[key] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeStore) FetchFootprints(ctx context.Context, aoiID string, extent gap.Extent) ([]gap.Footprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++

	tileID := f.tileIDFor(extent)
	if err := popErr(f.fetchErrs, tileID); err != nil {
		return nil, err
	}

	const cell = 0.05
	cols := int(math.Round(extent.Width() / cell))
	rows := int(math.Round(extent.Height() / cell))

	var fps []gap.Footprint
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if f.gapTiles[tileID] && col == 0 && row == 0 {
				continue
			}
			fps = append(fps, gap.Footprint{
				ID: fmt.Sprintf("%s-%d-%d", tileID, col, row),
				Geom: geom.NewPointFlat(geom.XY, []float64{
					extent.MinX + (float64(col)+0.5)*cell,
					extent.MinY + (float64(row)+0.5)*cell,
				}),
			})
		}
	}
	return fps, nil
}

func (f *fakeStore) FetchBoundary(ctx context.Context, aoiID string) (*geom.Polygon, error) {
	return f.boundary, nil
}

func (f *fakeStore) PersistGaps(ctx context.Context, tileID string, gaps []gap.GapPolygon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(f.persistErrs, tileID); err != nil {
		return err
	}
	f.persisted[tileID] = gaps
	return nil
}

func (f *fakeStore) LoadGaps(ctx context.Context, tileIDs []string) ([]gap.GapPolygon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var gaps []gap.GapPolygon
	for _, id := range tileIDs {
		gaps = append(gaps, f.persisted[id]...)
	}
	return gaps, nil
}

func (f *fakeStore) LoadCheckpoint(ctx context.Context, runName string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	done := make(map[string]bool, len(f.checkpoints[runName]))
	for id := range f.checkpoints[runName] {
		done[id] = true
	}
	return done, nil
}

func (f *fakeStore) AppendCheckpoint(ctx context.Context, runName, tileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkpoints[runName] == nil {
		f.checkpoints[runName] = map[string]bool{}
	}
	f.checkpoints[runName][tileID] = true
	delete(f.failures[runName], tileID)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, runName, tileID, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[runName] == nil {
		f.failures[runName] = map[string]string{}
	}
	f.failures[runName][tileID] = cause
	return nil
}

func (f *fakeStore) LoadFailed(ctx context.Context, runName string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	failed := make(map[string]string, len(f.failures[runName]))
	for id, cause := range f.failures[runName] {
		failed[id] = cause
	}
	return failed, nil
}

func (f *fakeStore) SaveRunSummary(ctx context.Context, s store.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                      { return nil }

func testBoundary() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 0.3, 0, 0.3, 0.1, 0, 0.1, 0, 0,
	}, []int{10})
}

func testRunner(fs *fakeStore) *Runner {
	return &Runner{
		Store:       fs,
		Checkpoints: fs,
		Config: gap.TuneConfig{
			CellSize:          0.05,
			Connectivity:      gap.Conn4,
			MinRectangularity: 0.5,
		},
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

// testSpec tiles the 0.3 x 0.1 boundary into three 0.1 tiles.
func testSpec() RunSpec {
	return RunSpec{RunName: "run-1", AOIID: "testland", TileSize: 0.1}
}

func TestRunner_AllTilesComplete(t *testing.T) {
	fs := newFakeStore(testBoundary(), 0.1)
	fs.gapTiles["tile_0001_0000"] = true

	summary, err := testRunner(fs).Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Skipped)
	assert.Len(t, fs.checkpoints["run-1"], 3)

	gaps := fs.persisted["tile_0001_0000"]
	require.Len(t, gaps, 1)
	assert.Equal(t, "tile_0001_0000", gaps[0].TileID)
	assert.InDelta(t, 0.0025, gaps[0].Area, 1e-9)

	assert.Empty(t, fs.persisted["tile_0000_0000"])
	require.Len(t, fs.summaries, 1)
	assert.Equal(t, summary.RunID, fs.summaries[0].RunID)
}

func TestRunner_FailedTileRetriedOnResume(t *testing.T) {
	fs := newFakeStore(testBoundary(), 0.1)
	fs.persistErrs["tile_0001_0000"] = []error{errors.New("relation does not exist")}

	runner := testRunner(fs)
	summary, err := runner.Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, fs.checkpoints["run-1"], 2)
	assert.Contains(t, fs.failures["run-1"], "tile_0001_0000")

	// Resuming skips the completed tiles and retries the failed one, which
	// now succeeds and clears the failure record.
	summary, err = runner.Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Len(t, fs.checkpoints["run-1"], 3)
	assert.Empty(t, fs.failures["run-1"])
}

func TestRunner_TransientErrorRetried(t *testing.T) {
	fs := newFakeStore(testBoundary(), 0.1)
	fs.fetchErrs["tile_0000_0000"] = []error{
		resilience.NewTransientError(errors.New("connection reset")),
		resilience.NewTransientError(errors.New("connection reset")),
	}

	summary, err := testRunner(fs).Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Completed)
	assert.Zero(t, summary.Failed)
	// Two transient failures plus the success, then one fetch per
	// remaining tile.
	assert.Equal(t, 5, fs.fetchCalls)
}

func TestRunner_PermanentErrorNotRetried(t *testing.T) {
	fs := newFakeStore(testBoundary(), 0.1)
	fs.fetchErrs["tile_0002_0000"] = []error{errors.New("column does not exist")}

	summary, err := testRunner(fs).Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, fs.fetchCalls, "permanent failures must not be retried")
}

func TestRunner_ExcludeFailed(t *testing.T) {
	fs := newFakeStore(testBoundary(), 0.1)
	require.NoError(t, fs.MarkFailed(context.Background(), "run-1", "tile_0001_0000", "boom"))

	runner := testRunner(fs)
	runner.ExcludeFailed = true
	summary, err := runner.Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.NotContains(t, fs.checkpoints["run-1"], "tile_0001_0000")
	assert.Contains(t, fs.failures["run-1"], "tile_0001_0000")
}

func TestRunner_Concurrent(t *testing.T) {
	fs := newFakeStore(testBoundary(), 0.1)
	fs.gapTiles["tile_0002_0000"] = true

	runner := testRunner(fs)
	runner.Concurrency = 3
	summary, err := runner.Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Completed)
	require.Len(t, fs.persisted["tile_0002_0000"], 1)
}

func TestRunner_EmptyRunName(t *testing.T) {
	fs := newFakeStore(testBoundary(), 0.1)
	spec := testSpec()
	spec.RunName = ""

	_, err := testRunner(fs).Run(context.Background(), spec)
	var ipe *gap.InvalidParameterError
	require.ErrorAs(t, err, &ipe)
}
