package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skbench/internal/stats"
)

// attemptPause separates a user's consecutive attempts in the
// multi-user check so a duplicate is a deliberate retry, not a race.
const attemptPause = 100 * time.Millisecond

// DuplicateSingleVerdict: one identity submits twice sequentially; a
// correct service rejects the second attempt.
type DuplicateSingleVerdict struct {
	UserID int64 `json:"user_id"`

	FirstOrderSN  string `json:"first_order_sn"`
	SecondSuccess bool   `json:"second_success"`
	SecondOrderSN string `json:"second_order_sn,omitempty"`
	SecondMessage string `json:"second_message,omitempty"`

	Blocked bool `json:"blocked"`
}

// CheckDuplicateSingle registers a fresh identity and submits the same
// order twice in sequence. Passing means the second attempt was
// rejected. The per-identity lock makes "sequential" trustworthy: no
// other worker can race this identity.
func (v *Verifier) CheckDuplicateSingle(ctx context.Context, activityID int64) (*DuplicateSingleVerdict, error) {
	act, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if act.AvailableStock <= 0 {
		return nil, fmt.Errorf("activity %d is sold out, nothing to verify against", activityID)
	}

	if v.pool.RegisterBatch(ctx, 1, prefixed("dup_test")) == 0 {
		return nil, fmt.Errorf("could not register a test user")
	}
	ident, _ := v.pool.Last()
	v.log.Info("duplicate check user", zap.Int64("userID", ident.ID))

	agg := stats.NewAggregator()

	first := v.client.Seckill(ctx, ident.ID, activityID, agg)
	if !first.Success {
		return nil, fmt.Errorf("first submission failed (%s), cannot verify duplicates", first.Message)
	}

	second := v.client.Seckill(ctx, ident.ID, activityID, agg)

	verdict := &DuplicateSingleVerdict{
		UserID:        ident.ID,
		FirstOrderSN:  first.OrderSN,
		SecondSuccess: second.Success,
		SecondOrderSN: second.OrderSN,
		SecondMessage: second.Message,
		Blocked:       !second.Success,
	}
	if verdict.Blocked {
		v.log.Info("second submission rejected", zap.String("reason", second.Message))
	} else {
		v.log.Warn("second submission succeeded: duplicate purchase is possible",
			zap.String("second_order", second.OrderSN))
	}
	return verdict, nil
}

// DuplicateMultiVerdict: N identities each submit up to two orders over
// a bounded worker pool. A correct service keeps total successes at or
// below min(registered, initialStock) and hands each identity at most
// one distinct order.
type DuplicateMultiVerdict struct {
	Users    int `json:"users"`
	Attempts int `json:"attempts_per_user"`

	Requests int `json:"requests"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`

	InitialStock   int64 `json:"initial_stock"`
	FinalStock     int64 `json:"final_stock"`
	StockReduction int64 `json:"stock_reduction"`

	ExpectedMaxSuccess int64 `json:"expected_max_success"`
	WithinLimit        bool  `json:"within_limit"`
	MultiOrderUsers    int   `json:"multi_order_users"`
	OnePerUser         bool  `json:"one_per_user"`
	StockConsistent    bool  `json:"stock_consistent"`
	Passed             bool  `json:"passed"`
}

// CheckDuplicateMulti fans users*attempts submissions out across a
// bounded worker pool, with a small pause between a user's own
// attempts.
func (v *Verifier) CheckDuplicateMulti(ctx context.Context, activityID int64, users, attempts int) (*DuplicateMultiVerdict, error) {
	act, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if act.AvailableStock <= 0 {
		return nil, fmt.Errorf("activity %d is sold out, nothing to verify against", activityID)
	}

	registered := v.pool.RegisterBatch(ctx, users, prefixed("dup_test_multi"))
	if registered < 10 {
		return nil, fmt.Errorf("only %d users registered, need at least 10", registered)
	}
	ids := v.pool.Identities()
	ids = ids[len(ids)-registered:]

	workers := minInt(50, registered)
	v.log.Info("starting multi-user duplicate check",
		zap.Int("users", registered),
		zap.Int("attempts", attempts),
		zap.Int("workers", workers))

	agg := stats.NewAggregator()

	var mu sync.Mutex
	ordersByUser := make(map[int64]map[string]struct{})
	success, failed := 0, 0

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, ident := range ids {
		g.Go(func() error {
			for i := 0; i < attempts; i++ {
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
				sleepQuiet(ctx, attemptPause)
			}
			return nil
		})
	}
	g.Wait()

	after, err := v.mustActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	multi := 0
	for userID, set := range ordersByUser {
		if len(set) > 1 {
			multi++
			v.log.Warn("identity holds multiple distinct orders",
				zap.Int64("userID", userID),
				zap.Int("orders", len(set)))
		}
	}

	verdict := &DuplicateMultiVerdict{
		Users:              registered,
		Attempts:           attempts,
		Requests:           success + failed,
		Success:            success,
		Failed:             failed,
		InitialStock:       act.AvailableStock,
		FinalStock:         after.AvailableStock,
		StockReduction:     act.AvailableStock - after.AvailableStock,
		ExpectedMaxSuccess: minInt64(int64(registered), act.AvailableStock),
		MultiOrderUsers:    multi,
	}
	verdict.WithinLimit = int64(verdict.Success) <= verdict.ExpectedMaxSuccess
	verdict.OnePerUser = multi == 0
	verdict.StockConsistent = verdict.StockReduction == int64(verdict.Success)
	verdict.Passed = verdict.WithinLimit && verdict.OnePerUser

	if verdict.Passed {
		v.log.Info("duplicate purchases are limited to one order per user")
	} else {
		v.log.Warn("duplicate purchase limit violated",
			zap.Int("success", verdict.Success),
			zap.Int64("expected_max", verdict.ExpectedMaxSuccess),
			zap.Int("multi_order_users", multi))
	}
	return verdict, nil
}

func sleepQuiet(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
