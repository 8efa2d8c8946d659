package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCheckpoint(t *testing.T) *SQLiteCheckpoint {
	t.Helper()
	cp, err := NewSQLiteCheckpoint(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })
	require.NoError(t, cp.Migrate(context.Background()))
	return cp
}

func TestSQLiteCheckpoint_AppendAndLoad(t *testing.T) {
	cp := newTestCheckpoint(t)
	ctx := context.Background()

	done, err := cp.LoadCheckpoint(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, done)

	require.NoError(t, cp.AppendCheckpoint(ctx, "run-1", "tile_0000_0000"))
	require.NoError(t, cp.AppendCheckpoint(ctx, "run-1", "tile_0001_0000"))
	// Appending the same tile twice is idempotent.
	require.NoError(t, cp.AppendCheckpoint(ctx, "run-1", "tile_0001_0000"))

	done, err = cp.LoadCheckpoint(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, done, 2)
	assert.True(t, done["tile_0000_0000"])

	// Runs are isolated by name.
	other, err := cp.LoadCheckpoint(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteCheckpoint_Failures(t *testing.T) {
	cp := newTestCheckpoint(t)
	ctx := context.Background()

	require.NoError(t, cp.MarkFailed(ctx, "run-1", "tile_0002_0000", "fetch footprints: timeout"))
	require.NoError(t, cp.MarkFailed(ctx, "run-1", "tile_0002_0000", "persist gaps: conn closed"))

	failed, err := cp.LoadFailed(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "persist gaps: conn closed", failed["tile_0002_0000"])

	// Completing the tile clears its failure record.
	require.NoError(t, cp.AppendCheckpoint(ctx, "run-1", "tile_0002_0000"))
	failed, err = cp.LoadFailed(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestSQLiteCheckpoint_SaveRunSummary(t *testing.T) {
	cp := newTestCheckpoint(t)
	ctx := context.Background()

	now := time.Now().UTC()
	sum := RunSummary{
		RunID:      uuid.New().String(),
		RunName:    "run-1",
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Completed:  10,
		Failed:     1,
		Skipped:    4,
	}
	require.NoError(t, cp.SaveRunSummary(ctx, sum))

	var completed, failed, skipped int
	err := cp.db.QueryRowContext(ctx,
		`SELECT completed, failed, skipped FROM runs WHERE id = ?`, sum.RunID).
		Scan(&completed, &failed, &skipped)
	require.NoError(t, err)
	assert.Equal(t, 10, completed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 4, skipped)
}
