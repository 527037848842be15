package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sockbench/internal/runner"
	"sockbench/internal/stats"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(ts time.Time, sent uint64) Record {
	r := NewRecord(runner.Config{Message: "hi", RequestsPerSecond: 10, Duration: 2 * time.Second},
		stats.Summary{TotalSent: sent, TotalSucceeded: sent, SuccessRate: 1, HasData: true})
	r.Timestamp = ts
	return r
}

func TestSaveListNewestFirst(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(record(base.Add(time.Minute), 2)))
	require.NoError(t, s.Save(record(base, 1)))
	require.NoError(t, s.Save(record(base.Add(2*time.Minute), 3)))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.EqualValues(t, 3, list[0].Summary.TotalSent)
	assert.EqualValues(t, 2, list[1].Summary.TotalSent)
	assert.EqualValues(t, 1, list[2].Summary.TotalSent)
	assert.Equal(t, 2*time.Second, list[0].Config.Duration)
}

func TestGet(t *testing.T) {
	s := openTemp(t)
	r := record(time.Now().UTC(), 5)
	require.NoError(t, s.Save(r))

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.EqualValues(t, 5, got.Summary.TotalSent)

	got, err = s.Get(r.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(record(time.Now(), 7)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 7, list[0].Summary.TotalSent)
}

func TestSaveRequiresID(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.Save(Record{}))
}
