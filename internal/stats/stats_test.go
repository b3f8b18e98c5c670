package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConcurrent(t *testing.T) {
	agg := NewAggregator()

	const goroutines = 20
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				success := i%2 == 0
				o := Outcome{
					Success:   success,
					LatencyMs: float64(i + 1),
					Status:    200,
				}
				if success {
					o.OrderSN = fmt.Sprintf("SK%d_%d", g, i)
				} else {
					o.Message = "sold out"
				}
				agg.Record(o)
			}
		}(g)
	}
	wg.Wait()

	total, success, failed := agg.Counts()
	assert.Equal(t, goroutines*perGoroutine, total)
	assert.Equal(t, goroutines*perGoroutine/2, success)
	assert.Equal(t, goroutines*perGoroutine/2, failed)
	assert.Equal(t, goroutines*perGoroutine/2, len(agg.Orders()))
	assert.InDelta(t, 50.0, agg.SuccessRate(), 0.001)
}

func TestPercentileNearestRank(t *testing.T) {
	agg := NewAggregator()
	for _, ms := range []float64{10, 20, 30, 40} {
		agg.Record(Outcome{Success: true, LatencyMs: ms, Status: 200})
	}

	// index = floor(4 * 50 / 100) = 2, third smallest
	assert.Equal(t, 30.0, agg.Percentile(50))
	assert.Equal(t, 10.0, agg.Percentile(0))
	assert.Equal(t, 40.0, agg.Percentile(99))
	// p=100 would index past the end; clamp to the max sample
	assert.Equal(t, 40.0, agg.Percentile(100))
}

func TestPercentileEmpty(t *testing.T) {
	agg := NewAggregator()
	assert.Equal(t, 0.0, agg.Percentile(50))
}

func TestZeroSafeRates(t *testing.T) {
	agg := NewAggregator()
	assert.Equal(t, 0.0, agg.SuccessRate())
	assert.Equal(t, 0.0, agg.AvgLatencyMs())

	s := agg.Snapshot()
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.SuccessRate)
	assert.Equal(t, 0.0, s.AvgLatencyMs)
}

func TestQPSOverTimeEmpty(t *testing.T) {
	agg := NewAggregator()
	offsets, qps := agg.QPSOverTime(1)
	require.NotNil(t, offsets)
	require.NotNil(t, qps)
	assert.Empty(t, offsets)
	assert.Empty(t, qps)
}

func TestQPSOverTime(t *testing.T) {
	agg := NewAggregator()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 4 requests in second 0, 2 in second 1, 1 in second 2..3
	for i := 0; i < 4; i++ {
		agg.Record(Outcome{Success: true, LatencyMs: 1, Status: 200, Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)})
	}
	agg.Record(Outcome{Success: true, LatencyMs: 1, Status: 200, Timestamp: base.Add(1200 * time.Millisecond)})
	agg.Record(Outcome{Success: true, LatencyMs: 1, Status: 200, Timestamp: base.Add(1500 * time.Millisecond)})
	agg.Record(Outcome{Success: true, LatencyMs: 1, Status: 200, Timestamp: base.Add(2500 * time.Millisecond)})

	offsets, qps := agg.QPSOverTime(1)
	require.Len(t, offsets, 3)
	require.Len(t, qps, 3)
	assert.Equal(t, 0.0, offsets[0])
	assert.Equal(t, 4.0, qps[0])
	assert.Equal(t, 2.0, qps[1])
}

func TestQPSOverTimeShortSpanShrinksWindow(t *testing.T) {
	agg := NewAggregator()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.Record(Outcome{Success: true, LatencyMs: 1, Status: 200, Timestamp: base})
	agg.Record(Outcome{Success: true, LatencyMs: 1, Status: 200, Timestamp: base.Add(400 * time.Millisecond)})

	offsets, qps := agg.QPSOverTime(1)
	// span 0.4s < 1s window, so the window shrinks to span/2 = 0.2s
	require.Len(t, offsets, 2)
	require.Len(t, qps, 2)
	assert.InDelta(t, 0.2, offsets[1], 0.001)
}

func TestDistinctOrders(t *testing.T) {
	agg := NewAggregator()
	for _, sn := range []string{"A", "B", "A", "C", "B"} {
		agg.Record(Outcome{Success: true, LatencyMs: 1, Status: 200, OrderSN: sn})
	}
	assert.Equal(t, 3, agg.DistinctOrders())
	assert.Equal(t, 3, agg.Snapshot().DistinctOrders())
}

func TestSnapshotDerivedMetrics(t *testing.T) {
	agg := NewAggregator()
	agg.Record(Outcome{Success: true, LatencyMs: 10, Status: 200, OrderSN: "A"})
	agg.Record(Outcome{Success: false, LatencyMs: 30, Status: 500, Message: "boom"})

	s := agg.Snapshot()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Success)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 50.0, s.SuccessRate, 0.001)
	assert.InDelta(t, 20.0, s.AvgLatencyMs, 0.001)
	assert.Equal(t, 10.0, s.MinLatencyMs)
	assert.Equal(t, 30.0, s.MaxLatencyMs)
	assert.Equal(t, 1, s.StatusCounts[200])
	assert.Equal(t, 1, s.StatusCounts[500])
	assert.Equal(t, 1, s.ErrorCounts["boom"])
	assert.Equal(t, []string{"A"}, s.Orders)
}

func TestSafeHistogramClampsToMinimum(t *testing.T) {
	h := NewSafeHistogram()
	h.RecordValue(0)
	h.RecordValue(-5)
	h.RecordValue(1500)

	assert.Equal(t, int64(3), h.TotalCount())
	assert.GreaterOrEqual(t, h.Max(), int64(1400))
}

func TestLiveQuantile(t *testing.T) {
	agg := NewAggregator()
	for i := 1; i <= 100; i++ {
		agg.Record(Outcome{Success: true, LatencyMs: float64(i), Status: 200})
	}
	// hdrhistogram works at microsecond granularity with 3 significant digits
	assert.InDelta(t, 50.0, agg.LiveQuantile(50), 2.0)
	assert.InDelta(t, 99.0, agg.LiveQuantile(99), 2.0)
}
