package stats

import (
	"sort"
	"sync"
	"time"
)

// Outcome is the result of a single seckill submission. Immutable once recorded.
type Outcome struct {
	Success   bool
	LatencyMs float64
	Status    int
	Message   string
	OrderSN   string
	Timestamp time.Time
}

// Aggregator accumulates request outcomes from concurrent workers.
// One coarse mutex per call; contention is proportional to request rate,
// not to the work done inside, so this is cheap enough.
//
// An Aggregator is created fresh per test run or verification procedure.
// There is no reset: replace the instance instead.
type Aggregator struct {
	mu sync.Mutex

	total   int
	success int
	failed  int

	latencySum float64
	latencyMin float64
	latencyMax float64
	latencies  []float64

	statusCounts map[int]int
	errorCounts  map[string]int

	orders     []string
	timestamps []time.Time

	// hdrhistogram view used only for cheap live progress percentiles;
	// final report percentiles come from the exact sample sort below.
	live *SafeHistogram
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		statusCounts: make(map[int]int),
		errorCounts:  make(map[string]int),
		live:         NewSafeHistogram(),
	}
}

// Record folds one outcome into every counter and histogram atomically
// with respect to concurrent callers.
func (a *Aggregator) Record(o Outcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}

	a.mu.Lock()
	a.total++
	a.latencySum += o.LatencyMs
	a.latencies = append(a.latencies, o.LatencyMs)
	a.timestamps = append(a.timestamps, o.Timestamp)

	if a.total == 1 || o.LatencyMs < a.latencyMin {
		a.latencyMin = o.LatencyMs
	}
	if o.LatencyMs > a.latencyMax {
		a.latencyMax = o.LatencyMs
	}

	a.statusCounts[o.Status]++

	if o.Success {
		a.success++
		if o.OrderSN != "" {
			a.orders = append(a.orders, o.OrderSN)
		}
	} else {
		a.failed++
		if o.Message != "" {
			a.errorCounts[o.Message]++
		}
	}
	a.mu.Unlock()

	a.live.RecordValue(int64(o.LatencyMs * 1000)) // microseconds
}

// Counts returns (total, success, failed).
func (a *Aggregator) Counts() (int, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total, a.success, a.failed
}

// SuccessRate returns the success percentage, 0 when nothing was recorded.
func (a *Aggregator) SuccessRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total == 0 {
		return 0
	}
	return float64(a.success) / float64(a.total) * 100
}

// AvgLatencyMs returns the mean latency, 0 when nothing was recorded.
func (a *Aggregator) AvgLatencyMs() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total == 0 {
		return 0
	}
	return a.latencySum / float64(a.total)
}

// Percentile returns the nearest-rank latency percentile: samples sorted
// ascending, value at index floor(len*p/100). Not interpolated; tests
// depend on the exact estimator. Defined for p in [0,100); the index is
// clamped so p at or near 100 returns the max sample instead of panicking.
func (a *Aggregator) Percentile(p float64) float64 {
	a.mu.Lock()
	samples := append([]float64(nil), a.latencies...)
	a.mu.Unlock()

	if len(samples) == 0 {
		return 0
	}
	sort.Float64s(samples)
	idx := int(float64(len(samples)) * p / 100)
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return samples[idx]
}

// QPSOverTime buckets the recorded timestamps into fixed windows starting
// at the earliest sample and returns parallel slices of window-start
// offsets (seconds) and requests-per-second within each window. When the
// whole span is shorter than the window, the window shrinks to span/2
// (0.1s when the span is zero). Both slices are empty when nothing was
// recorded.
func (a *Aggregator) QPSOverTime(windowSec float64) ([]float64, []float64) {
	a.mu.Lock()
	ts := append([]time.Time(nil), a.timestamps...)
	a.mu.Unlock()

	if len(ts) == 0 {
		return []float64{}, []float64{}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	start := ts[0]
	span := ts[len(ts)-1].Sub(start).Seconds()
	if span < windowSec {
		if span > 0 {
			windowSec = span / 2
		} else {
			windowSec = 0.1
		}
	}

	offsets := []float64{}
	qps := []float64{}
	for cur := 0.0; cur < span; cur += windowSec {
		count := 0
		for _, t := range ts {
			off := t.Sub(start).Seconds()
			if off >= cur && off < cur+windowSec {
				count++
			}
		}
		offsets = append(offsets, cur)
		qps = append(qps, float64(count)/windowSec)
	}
	return offsets, qps
}

// Orders returns a copy of the recorded success order references.
func (a *Aggregator) Orders() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.orders...)
}

// DistinctOrders counts unique success order references.
func (a *Aggregator) DistinctOrders() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[string]struct{}, len(a.orders))
	for _, sn := range a.orders {
		seen[sn] = struct{}{}
	}
	return len(seen)
}

// LiveQuantile reads a quantile from the hdrhistogram view in ms. Meant
// for progress snapshots while a run is still in flight.
func (a *Aggregator) LiveQuantile(q float64) float64 {
	return float64(a.live.ValueAtQuantile(q)) / 1000.0
}

// Summary is an immutable snapshot of the aggregator plus every derived
// metric the reporting layer needs.
type Summary struct {
	Total   int `json:"total_requests"`
	Success int `json:"success_requests"`
	Failed  int `json:"failed_requests"`

	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MinLatencyMs float64 `json:"min_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
	P50          float64 `json:"p50_ms"`
	P90          float64 `json:"p90_ms"`
	P95          float64 `json:"p95_ms"`
	P99          float64 `json:"p99_ms"`

	StatusCounts map[int]int    `json:"status_counts"`
	ErrorCounts  map[string]int `json:"error_counts"`
	Orders       []string       `json:"orders"`
	LatenciesMs  []float64      `json:"-"`

	QPSOffsets []float64 `json:"qps_offsets"`
	QPSValues  []float64 `json:"qps_values"`
}

// DistinctOrders counts unique order references in the snapshot.
func (s Summary) DistinctOrders() int {
	seen := make(map[string]struct{}, len(s.Orders))
	for _, sn := range s.Orders {
		seen[sn] = struct{}{}
	}
	return len(seen)
}

// Snapshot derives a consistent Summary from the current state.
func (a *Aggregator) Snapshot() Summary {
	a.mu.Lock()
	s := Summary{
		Total:        a.total,
		Success:      a.success,
		Failed:       a.failed,
		StatusCounts: make(map[int]int, len(a.statusCounts)),
		ErrorCounts:  make(map[string]int, len(a.errorCounts)),
		Orders:       append([]string(nil), a.orders...),
		LatenciesMs:  append([]float64(nil), a.latencies...),
	}
	for k, v := range a.statusCounts {
		s.StatusCounts[k] = v
	}
	for k, v := range a.errorCounts {
		s.ErrorCounts[k] = v
	}
	if a.total > 0 {
		s.SuccessRate = float64(a.success) / float64(a.total) * 100
		s.AvgLatencyMs = a.latencySum / float64(a.total)
		s.MinLatencyMs = a.latencyMin
		s.MaxLatencyMs = a.latencyMax
	}
	a.mu.Unlock()

	s.P50 = a.Percentile(50)
	s.P90 = a.Percentile(90)
	s.P95 = a.Percentile(95)
	s.P99 = a.Percentile(99)
	s.QPSOffsets, s.QPSValues = a.QPSOverTime(1)
	return s
}
