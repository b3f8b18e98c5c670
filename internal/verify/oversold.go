package verify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skbench/internal/stats"
)

// OversoldOptions sizes the burst. TotalUsers identities are registered;
// min(registered, Concurrency*10) submissions are dispatched across
// Concurrency workers; Deadline caps the wall-clock time of the burst.
type OversoldOptions struct {
	Concurrency int
	TotalUsers  int
	Deadline    time.Duration
}

// OversoldVerdict reports the stock math after a very-high-concurrency
// burst. Oversold (reduction < successes) is the severe case; Stuck
// (reduction > successes) points at reservations that never completed.
type OversoldVerdict struct {
	Requests int `json:"requests"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`

	InitialStock    int64 `json:"initial_stock"`
	FinalStock      int64 `json:"final_stock"`
	StockReduction  int64 `json:"stock_reduction"`
	TotalStock      int64 `json:"total_stock"`
	UsedStockBefore int64 `json:"used_stock_before"`

	Consistent        bool `json:"consistent"`
	Oversold          bool `json:"oversold"`
	StuckReservations bool `json:"stuck_reservations"`
	ActivityOversold  bool `json:"activity_oversold"`

	Duration time.Duration `json:"duration"`
	QPS      float64       `json:"qps"`
}

// CheckOversold floods the activity with concurrent submissions and
// verifies that stockReduction == successCount exactly. The burst waits
// for every submitted request to finish (or the deadline); an ordinary
// failed purchase never cuts it short.
func (v *Verifier) CheckOversold(ctx context.Context, activityID int64, opts OversoldOptions) (*OversoldVerdict, error) {
	act, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if act.AvailableStock < 10 {
		return nil, fmt.Errorf("activity %d has only %d stock left, not enough for a meaningful burst", activityID, act.AvailableStock)
	}

	registered := v.pool.RegisterBatch(ctx, opts.TotalUsers, prefixed("stress"))
	if registered == 0 {
		return nil, fmt.Errorf("no users could be registered")
	}
	if registered < opts.Concurrency/2 {
		v.log.Warn("registered far fewer users than the target concurrency",
			zap.Int("registered", registered),
			zap.Int("concurrency", opts.Concurrency))
	}
	ids := v.pool.Identities()

	agg := stats.NewAggregator()
	requests := minInt(len(ids), opts.Concurrency*10)

	var success, failed atomic.Int64
	burstCtx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.Deadline > 0 {
		burstCtx, cancel = context.WithTimeout(ctx, opts.Deadline)
	}
	defer cancel()

	v.log.Info("starting oversold burst",
		zap.Int("requests", requests),
		zap.Int("concurrency", opts.Concurrency),
		zap.Int64("initial_stock", act.AvailableStock))

	start := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(opts.Concurrency)
	for i := 0; i < requests; i++ {
		ident := ids[i%len(ids)]
		g.Go(func() error {
			res := v.client.Seckill(burstCtx, ident.ID, activityID, agg)
			if res.Success {
				success.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	after, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	verdict := &OversoldVerdict{
		Requests:        requests,
		Success:         int(success.Load()),
		Failed:          int(failed.Load()),
		InitialStock:    act.AvailableStock,
		FinalStock:      after.AvailableStock,
		StockReduction:  act.AvailableStock - after.AvailableStock,
		TotalStock:      act.TotalStock,
		UsedStockBefore: act.TotalStock - act.AvailableStock,
		Duration:        elapsed,
	}
	if elapsed > 0 {
		verdict.QPS = float64(requests) / elapsed.Seconds()
	}
	verdict.Consistent = verdict.StockReduction == int64(verdict.Success)
	verdict.Oversold = verdict.StockReduction < int64(verdict.Success)
	verdict.StuckReservations = verdict.StockReduction > int64(verdict.Success)
	verdict.ActivityOversold = verdict.UsedStockBefore+verdict.StockReduction > verdict.TotalStock

	switch {
	case verdict.Oversold:
		v.log.Warn("oversell detected: more successes than stock consumed",
			zap.Int64("stock_reduction", verdict.StockReduction),
			zap.Int("success", verdict.Success))
	case verdict.StuckReservations:
		v.log.Warn("possible stuck reservations: stock consumed without matching successes",
			zap.Int64("stock_reduction", verdict.StockReduction),
			zap.Int("success", verdict.Success))
	default:
		v.log.Info("stock reduction matches successful orders",
			zap.Int64("stock_reduction", verdict.StockReduction))
	}
	return verdict, nil
}
