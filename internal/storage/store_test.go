package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skbench/internal/driver"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func item(id string, ts time.Time) HistoryItem {
	return HistoryItem{
		ID:         id,
		Timestamp:  ts,
		BaseURL:    "http://localhost:8080",
		ActivityID: 7,
		Profile:    driver.Presets()["light"],
		Summary: RunSummary{
			TotalRequests: 100,
			Success:       90,
			Fail:          10,
			SuccessRate:   90,
			AvgLatencyMs:  12.5,
			P99LatencyMs:  80,
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openTemp(t)

	saved := item("run-1", time.Now())
	require.NoError(t, s.Save(saved))

	got, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, saved.ActivityID, got.ActivityID)
	assert.Equal(t, saved.Summary, got.Summary)
	assert.Equal(t, "light", got.Profile.Name)
}

func TestGetUnknown(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListNewestFirst(t *testing.T) {
	s := openTemp(t)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.Save(item("old", base)))
	require.NoError(t, s.Save(item("mid", base.Add(10*time.Minute))))
	require.NoError(t, s.Save(item("new", base.Add(20*time.Minute))))

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, "mid", items[1].ID)
	assert.Equal(t, "old", items[2].ID)
}

func TestListEmpty(t *testing.T) {
	s := openTemp(t)
	items, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}
