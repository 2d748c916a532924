package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seedpipe/internal/etl"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunStore(db)
}

func runLog(kind etl.RunKind, started time.Time, status string) *etl.RunLog {
	return &etl.RunLog{
		Kind:        kind,
		Inputs:      []string{"hucs.json"},
		Output:      "out",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
		Status:      status,
		RowsRead:    3,
		RowsWritten: 7,
	}
}

func TestRunStore_CreateAndList(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	log := runLog(etl.RunFetch, started, etl.StatusSuccess)
	log.Inputs = []string{"a.json", "b.json"}
	log.Error = ""
	require.NoError(t, store.CreateRunLog(log))
	assert.NotEmpty(t, log.ID)

	logs, err := store.ListRunLogs("", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	got := logs[0]
	assert.Equal(t, log.ID, got.ID)
	assert.Equal(t, etl.RunFetch, got.Kind)
	assert.Equal(t, []string{"a.json", "b.json"}, got.Inputs)
	assert.Equal(t, "out", got.Output)
	assert.Equal(t, etl.StatusSuccess, got.Status)
	assert.Equal(t, 3, got.RowsRead)
	assert.Equal(t, 7, got.RowsWritten)
	assert.True(t, started.Equal(got.StartedAt), "started_at round-trips: %v", got.StartedAt)
}

func TestRunStore_ListFiltersAndOrders(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateRunLog(runLog(etl.RunFetch, base, etl.StatusSuccess)))
	require.NoError(t, store.CreateRunLog(runLog(etl.RunFlatten, base.Add(time.Minute), etl.StatusSkipped)))
	failed := runLog(etl.RunFlatten, base.Add(2*time.Minute), etl.StatusError)
	failed.Error = "write: disk full"
	require.NoError(t, store.CreateRunLog(failed))

	all, err := store.ListRunLogs("", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, etl.StatusError, all[0].Status)
	assert.Equal(t, "write: disk full", all[0].Error)
	assert.Equal(t, etl.RunFetch, all[2].Kind)

	flattens, err := store.ListRunLogs(etl.RunFlatten, 10)
	require.NoError(t, err)
	require.Len(t, flattens, 2)
	for _, l := range flattens {
		assert.Equal(t, etl.RunFlatten, l.Kind)
	}

	limited, err := store.ListRunLogs("", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, failed.ID, limited[0].ID)
}

func TestRunStore_EmptyHistory(t *testing.T) {
	logs, err := newTestStore(t).ListRunLogs(etl.RunFetch, 5)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
