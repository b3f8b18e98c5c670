package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skbench/internal/client"
	"skbench/internal/driver"
	"skbench/internal/stats"
)

func sampleReport() *driver.RunReport {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg := stats.NewAggregator()
	for i := 0; i < 50; i++ {
		agg.Record(stats.Outcome{
			Success:   true,
			LatencyMs: float64(10 + i),
			Status:    200,
			OrderSN:   "SK" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Timestamp: start.Add(time.Duration(i) * 100 * time.Millisecond),
		})
	}
	for i := 0; i < 10; i++ {
		agg.Record(stats.Outcome{
			LatencyMs: 5,
			Status:    200,
			Message:   "sold out",
			Timestamp: start.Add(time.Duration(i) * 200 * time.Millisecond),
		})
	}

	rep := &driver.RunReport{
		RunID:      "20250601_120000",
		Profile:    driver.Presets()["light"],
		ActivityID: 7,
		Registered: 50,
		Workers:    10,
		Start:      start,
		End:        start.Add(10 * time.Second),
		Before:     &client.Activity{AvailableStock: 100, TotalStock: 100},
		After:      &client.Activity{AvailableStock: 50, TotalStock: 100},
		Stats:      agg.Snapshot(),
	}
	rep.StockReduction = 50
	rep.DistinctOrders = rep.Stats.DistinctOrders()
	return rep
}

func TestWriteProducesAllArtifacts(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	dir, err := w.Write(sampleReport(), "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "20250601_120000"), dir)

	for _, name := range []string{"config.json", "statistics.csv", "charts.html", "report.html"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "missing %s", name)
		assert.Greater(t, info.Size(), int64(0), "%s is empty", name)
	}
}

func TestWriteConfigContents(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	dir, err := w.Write(sampleReport(), "http://svc:9000")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(raw, &cfg))
	assert.Equal(t, "20250601_120000", cfg["test_id"])
	assert.Equal(t, "http://svc:9000", cfg["base_url"])
	assert.Equal(t, float64(7), cfg["activity_id"])
	assert.Equal(t, float64(100), cfg["stock"])
	assert.Equal(t, float64(10), cfg["concurrent_users"])
}

func TestStatisticsCSVHasSummaryRows(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	dir, err := w.Write(sampleReport(), "http://localhost:8080")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "statistics.csv"))
	require.NoError(t, err)
	csv := string(raw)
	assert.Contains(t, csv, "Total Requests,60")
	assert.Contains(t, csv, "Successful Requests,50")
	assert.Contains(t, csv, "Failed Requests,10")
	assert.Contains(t, csv, "sold out,10")
}

func TestBinLatencies(t *testing.T) {
	labels, counts := binLatencies([]float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 100}, 10)
	require.Len(t, labels, 10)
	require.Len(t, counts, 10)

	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 10, total)
	// the max sample lands in the last bucket
	assert.GreaterOrEqual(t, counts[9], 1)
}

func TestBinLatenciesSingleValue(t *testing.T) {
	labels, counts := binLatencies([]float64{42, 42, 42}, 10)
	require.Len(t, labels, 1)
	assert.Equal(t, []int{3}, counts)
}
