// Package verify implements the correctness audits layered on top of
// the load machinery: oversold-stock, duplicate-purchase and
// idempotency checks. Each procedure snapshots the activity before and
// after its burst and cross-checks the stock delta against recorded
// successes. A failed individual request is that request's outcome, not
// an abort of the protocol; verdicts carry booleans plus raw counters
// so callers can assert on them programmatically.
package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"skbench/internal/client"
	"skbench/internal/userpool"
)

type Verifier struct {
	client *client.Client
	pool   *userpool.Pool
	log    *zap.Logger
}

func New(c *client.Client, p *userpool.Pool, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{client: c, pool: p, log: log}
}

// mustActivity fetches the activity or fails the whole procedure: an
// unknown activity id is a configuration error, not a verdict.
func (v *Verifier) mustActivity(ctx context.Context, id int64) (*client.Activity, error) {
	act, err := v.client.GetActivity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("activity %d: %w", id, err)
	}
	return act, nil
}

func prefixed(kind string) string {
	return fmt.Sprintf("%s_%d", kind, time.Now().Unix())
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
