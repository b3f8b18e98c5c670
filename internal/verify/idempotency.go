package verify

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skbench/internal/stats"
	"skbench/internal/userpool"
)

// concurrentRequestCap bounds the worker pool for the concurrent
// idempotency check regardless of how many requests are asked for.
const concurrentRequestCap = 500

// IdempotencySingleVerdict: submit, then resubmit the identical
// request. Passing means stock did not move again and, if the second
// call claims success, it returned the same order reference.
type IdempotencySingleVerdict struct {
	UserID int64 `json:"user_id"`

	FirstOrderSN  string `json:"first_order_sn"`
	SecondSuccess bool   `json:"second_success"`
	SecondOrderSN string `json:"second_order_sn,omitempty"`
	SecondMessage string `json:"second_message,omitempty"`

	StockAfterFirst  int64 `json:"stock_after_first"`
	StockAfterSecond int64 `json:"stock_after_second"`
	StockUnchanged   bool  `json:"stock_unchanged"`
	SameOrder        bool  `json:"same_order"`
	Passed           bool  `json:"passed"`
}

func (v *Verifier) CheckIdempotencySingle(ctx context.Context, activityID int64) (*IdempotencySingleVerdict, error) {
	act, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if act.AvailableStock <= 0 {
		return nil, fmt.Errorf("activity %d is sold out, nothing to verify against", activityID)
	}

	if v.pool.RegisterBatch(ctx, 1, prefixed("idempotent_test")) == 0 {
		return nil, fmt.Errorf("could not register a test user")
	}
	ident, _ := v.pool.Last()
	v.log.Info("idempotency check user", zap.Int64("userID", ident.ID))

	agg := stats.NewAggregator()

	first := v.client.Seckill(ctx, ident.ID, activityID, agg)
	if !first.Success {
		return nil, fmt.Errorf("first submission failed (%s), cannot verify idempotency", first.Message)
	}

	mid, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	second := v.client.Seckill(ctx, ident.ID, activityID, agg)

	after, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	verdict := &IdempotencySingleVerdict{
		UserID:           ident.ID,
		FirstOrderSN:     first.OrderSN,
		SecondSuccess:    second.Success,
		SecondOrderSN:    second.OrderSN,
		SecondMessage:    second.Message,
		StockAfterFirst:  mid.AvailableStock,
		StockAfterSecond: after.AvailableStock,
	}
	verdict.StockUnchanged = mid.AvailableStock == after.AvailableStock
	verdict.SameOrder = second.Success && second.OrderSN == first.OrderSN
	verdict.Passed = verdict.StockUnchanged && (!second.Success || verdict.SameOrder)

	if !verdict.StockUnchanged {
		v.log.Warn("repeated request consumed stock again",
			zap.Int64("after_first", mid.AvailableStock),
			zap.Int64("after_second", after.AvailableStock))
	}
	if second.Success && !verdict.SameOrder {
		v.log.Warn("repeated request produced a new order",
			zap.String("first", first.OrderSN),
			zap.String("second", second.OrderSN))
	}
	return verdict, nil
}

// IdempotencyConcurrentVerdict: a large burst of identity/activity
// pairs chosen randomly with replacement. Passing means no identity
// ever received two distinct orders and the stock reduction equals the
// number of distinct identities that succeeded at least once.
type IdempotencyConcurrentVerdict struct {
	Users    int `json:"users"`
	Requests int `json:"requests"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`

	InitialStock   int64 `json:"initial_stock"`
	FinalStock     int64 `json:"final_stock"`
	StockReduction int64 `json:"stock_reduction"`

	SucceededUsers    int  `json:"succeeded_users"`
	MultiOrderUsers   int  `json:"multi_order_users"`
	OrdersIdentical   bool `json:"orders_identical"`
	StockMatchesUsers bool `json:"stock_matches_users"`
	Passed            bool `json:"passed"`

	Duration time.Duration `json:"duration"`
	QPS      float64       `json:"qps"`
}

func (v *Verifier) CheckIdempotencyConcurrent(ctx context.Context, activityID int64, users, requests int) (*IdempotencyConcurrentVerdict, error) {
	act, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	registered := v.pool.RegisterBatch(ctx, users, prefixed("idem_test"))
	if registered < 10 {
		return nil, fmt.Errorf("only %d users registered, need at least 10", registered)
	}
	ids := v.pool.Identities()
	ids = ids[len(ids)-registered:]

	// Pick identities with replacement so most users are submitted more
	// than once, concurrently.
	tasks := make([]userpool.Identity, requests)
	for i := range tasks {
		tasks[i] = ids[rand.Intn(len(ids))]
	}

	workers := minInt(requests, concurrentRequestCap)
	v.log.Info("starting concurrent idempotency check",
		zap.Int("users", registered),
		zap.Int("requests", requests),
		zap.Int("workers", workers),
		zap.Int64("initial_stock", act.AvailableStock))

	agg := stats.NewAggregator()

	var mu sync.Mutex
	ordersByUser := make(map[int64]map[string]struct{})
	success, failed := 0, 0

	start := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, ident := range tasks {
		g.Go(func() error {
			res := v.client.Seckill(ctx, ident.ID, activityID, agg)
			mu.Lock()
			if res.Success {
				success++
				set := ordersByUser[ident.ID]
				if set == nil {
					set = make(map[string]struct{})
					ordersByUser[ident.ID] = set
				}
				set[res.OrderSN] = struct{}{}
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	after, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	multi := 0
	for userID, set := range ordersByUser {
		if len(set) > 1 {
			multi++
			v.log.Warn("identity received multiple distinct orders",
				zap.Int64("userID", userID),
				zap.Int("orders", len(set)))
		}
	}

	verdict := &IdempotencyConcurrentVerdict{
		Users:           registered,
		Requests:        requests,
		Success:         success,
		Failed:          failed,
		InitialStock:    act.AvailableStock,
		FinalStock:      after.AvailableStock,
		StockReduction:  act.AvailableStock - after.AvailableStock,
		SucceededUsers:  len(ordersByUser),
		MultiOrderUsers: multi,
		Duration:        elapsed,
	}
	if elapsed > 0 {
		verdict.QPS = float64(requests) / elapsed.Seconds()
	}
	verdict.OrdersIdentical = multi == 0
	verdict.StockMatchesUsers = verdict.StockReduction == int64(verdict.SucceededUsers)
	verdict.Passed = verdict.OrdersIdentical && verdict.StockMatchesUsers

	if verdict.Passed {
		v.log.Info("interface is idempotent under concurrency",
			zap.Int("succeeded_users", verdict.SucceededUsers))
	} else {
		v.log.Warn("idempotency violated under concurrency",
			zap.Int("multi_order_users", multi),
			zap.Int64("stock_reduction", verdict.StockReduction),
			zap.Int("succeeded_users", verdict.SucceededUsers))
	}
	return verdict, nil
}
