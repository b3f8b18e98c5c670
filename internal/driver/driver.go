// Package driver orchestrates the sustained load test: a fixed pool of
// persistent workers that repeatedly borrow an identity, submit one
// order, give the identity back and sleep a jittered delay.
package driver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skbench/internal/client"
	"skbench/internal/stats"
	"skbench/internal/userpool"
)

const (
	// Sleep when every identity is held, instead of busy-spinning.
	noIdentityBackoff = 100 * time.Millisecond
	// Progress is logged this often while the test runs.
	monitorInterval = 5 * time.Second
	// A worker that has not observed the stop signal within this window
	// is abandoned rather than waited on forever.
	workerJoinTimeout = 2 * time.Second
)

type Driver struct {
	client *client.Client
	pool   *userpool.Pool
	log    *zap.Logger
}

func New(c *client.Client, p *userpool.Pool, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{client: c, pool: p, log: log}
}

// RunReport is everything a reporting layer needs about one finished run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Profile    Profile          `json:"profile"`
	ActivityID int64            `json:"activity_id"`
	Registered int              `json:"registered_users"`
	Workers    int              `json:"workers"`
	Start      time.Time        `json:"start_time"`
	End        time.Time        `json:"end_time"`
	Before     *client.Activity `json:"activity_before,omitempty"`
	After      *client.Activity `json:"activity_after,omitempty"`

	StockReduction int64 `json:"stock_reduction"`
	DistinctOrders int   `json:"distinct_orders"`
	StockMismatch  bool  `json:"stock_mismatch"`

	Stats stats.Summary `json:"stats"`
}

// Run registers the profile's user pool, drives ConcurrentUsers workers
// against the activity until the profile duration elapses or ctx is
// cancelled, then reconciles the observed stock delta against recorded
// successes. Reconciliation mismatches are reported, never fatal: they
// are the very signal the verification protocols exist to catch.
func (d *Driver) Run(ctx context.Context, activityID int64, profile Profile) (*RunReport, error) {
	agg := stats.NewAggregator()
	start := time.Now()

	registered := d.pool.RegisterBatch(ctx, profile.TotalUsers, "test_user")
	workers := profile.ConcurrentUsers
	if registered < workers {
		d.log.Warn("registration under-delivered, shrinking concurrency",
			zap.Int("registered", registered),
			zap.Int("requested_concurrency", workers))
		workers = registered
		if workers < 1 {
			workers = 1
		}
	}

	before, err := d.client.GetActivity(ctx, activityID)
	if err != nil {
		d.log.Warn("could not read initial activity state", zap.Error(err))
	} else {
		d.log.Info("initial stock",
			zap.Int64("available", before.AvailableStock),
			zap.Int64("total", before.TotalStock))
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	d.log.Info("starting workers", zap.Int("workers", workers), zap.Duration("duration", profile.Duration))
	done := make([]chan struct{}, workers)
	for i := 0; i < workers; i++ {
		ch := make(chan struct{})
		done[i] = ch

		// Randomize each worker's base delay so they don't fall into
		// lockstep from the first iteration.
		base := profile.Delay
		if profile.Jitter > 0 {
			base += time.Duration(rand.Int63n(int64(profile.Jitter)/2 + 1))
		}
		go func() {
			defer close(ch)
			d.worker(runCtx, ctx, activityID, agg, base, profile.Jitter)
		}()
	}

	d.monitor(ctx, agg, start, profile.Duration)

	stop()
	d.log.Info("waiting for workers to stop")
	abandoned := 0
	for _, ch := range done {
		select {
		case <-ch:
		case <-time.After(workerJoinTimeout):
			abandoned++
		}
	}
	if abandoned > 0 {
		d.log.Warn("abandoned workers that did not stop in time", zap.Int("count", abandoned))
	}
	end := time.Now()

	after, err := d.client.GetActivity(ctx, activityID)
	if err != nil {
		d.log.Warn("could not read final activity state", zap.Error(err))
	}

	rep := &RunReport{
		RunID:      runID(start),
		Profile:    profile,
		ActivityID: activityID,
		Registered: registered,
		Workers:    workers,
		Start:      start,
		End:        end,
		Before:     before,
		After:      after,
		Stats:      agg.Snapshot(),
	}
	rep.DistinctOrders = rep.Stats.DistinctOrders()

	if before != nil && after != nil {
		rep.StockReduction = before.AvailableStock - after.AvailableStock
		d.log.Info("final stock",
			zap.Int64("available", after.AvailableStock),
			zap.Int64("reduction", rep.StockReduction),
			zap.Int("distinct_orders", rep.DistinctOrders))
		if rep.StockReduction != int64(rep.DistinctOrders) {
			rep.StockMismatch = true
			d.log.Warn("stock reduction does not match successful orders",
				zap.Int64("stock_reduction", rep.StockReduction),
				zap.Int("distinct_orders", rep.DistinctOrders))
		}
	}
	return rep, nil
}

// worker loops acquire -> submit -> release -> sleep until the stop
// signal is observed. The signal is only checked at iteration
// boundaries, never mid-request: submissions run on reqCtx, which the
// stop signal does not cancel, so an order the server may still process
// is recorded with its real outcome instead of a spurious cancellation.
func (d *Driver) worker(stopCtx, reqCtx context.Context, activityID int64, agg *stats.Aggregator, delay, jitter time.Duration) {
	for {
		select {
		case <-stopCtx.Done():
			return
		default:
		}

		ident, ok := d.pool.Acquire()
		if !ok {
			if !sleepCtx(stopCtx, noIdentityBackoff) {
				return
			}
			continue
		}

		d.client.Seckill(reqCtx, ident.ID, activityID, agg)
		d.pool.Release(ident.ID)

		wait := delay
		if jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(jitter)))
		}
		if wait > 0 {
			if !sleepCtx(stopCtx, wait) {
				return
			}
		}
	}
}

// monitor blocks until the run duration elapses or ctx is cancelled,
// logging a progress snapshot every monitorInterval.
func (d *Driver) monitor(ctx context.Context, agg *stats.Aggregator, start time.Time, duration time.Duration) {
	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	tick := time.NewTicker(monitorInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
			total, success, _ := agg.Counts()
			elapsed := time.Since(start)
			qps := 0.0
			if elapsed > 0 {
				qps = float64(total) / elapsed.Seconds()
			}
			d.log.Info("progress",
				zap.Int("requests", total),
				zap.Int("success", success),
				zap.Float64("success_rate", agg.SuccessRate()),
				zap.Float64("qps", qps),
				zap.Float64("p99_ms", agg.LiveQuantile(99)),
				zap.Duration("elapsed", elapsed.Round(time.Second)),
				zap.Duration("duration", duration))
		}
	}
}

// runID names a run by its start second plus a random suffix, so runs
// started within the same second never share a report directory or
// history key.
func runID(start time.Time) string {
	return fmt.Sprintf("%s_%s", start.Format("20060102_150405"), uuid.NewString()[:8])
}

// sleepCtx sleeps for dur, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
