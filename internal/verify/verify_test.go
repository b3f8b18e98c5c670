package verify

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skbench/internal/client"
	"skbench/internal/mockseckill"
	"skbench/internal/userpool"
)

// newFixture spins up a mock service with the given behavior, creates an
// activity with the given stock and returns a ready Verifier.
func newFixture(t *testing.T, opts mockseckill.Options, stock int64) (*Verifier, int64, func()) {
	t.Helper()

	mock := mockseckill.New(opts)
	srv := httptest.NewServer(mock.Handler())

	c := client.New(srv.URL, nil)
	activityID, err := c.CreateActivity(context.Background(), "verify test", 1, 9.9, stock)
	require.NoError(t, err)

	v := New(c, userpool.New(c, nil), nil)
	return v, activityID, srv.Close
}

func TestCheckOversoldCorrectService(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{}, 20)
	defer done()

	verdict, err := v.CheckOversold(context.Background(), activityID, OversoldOptions{
		Concurrency: 20,
		TotalUsers:  60,
		Deadline:    time.Minute,
	})
	require.NoError(t, err)

	// 60 buyers against 20 units: exactly the stock sells out
	assert.Equal(t, 20, verdict.Success)
	assert.Equal(t, int64(20), verdict.StockReduction)
	assert.Equal(t, int64(0), verdict.FinalStock)
	assert.True(t, verdict.Consistent)
	assert.False(t, verdict.Oversold)
	assert.False(t, verdict.StuckReservations)
	assert.False(t, verdict.ActivityOversold)
	assert.Equal(t, verdict.Requests, verdict.Success+verdict.Failed)
}

func TestCheckOversoldDetectsOversell(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{OversellBug: true}, 20)
	defer done()

	verdict, err := v.CheckOversold(context.Background(), activityID, OversoldOptions{
		Concurrency: 20,
		TotalUsers:  60,
		Deadline:    time.Minute,
	})
	require.NoError(t, err)

	// the buggy service keeps reporting success after stock hits zero
	assert.Greater(t, verdict.Success, 20)
	assert.Equal(t, int64(20), verdict.StockReduction)
	assert.True(t, verdict.Oversold)
	assert.False(t, verdict.Consistent)
}

func TestCheckOversoldRefusesThinStock(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{}, 5)
	defer done()

	_, err := v.CheckOversold(context.Background(), activityID, OversoldOptions{
		Concurrency: 10,
		TotalUsers:  10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough")
}

func TestCheckDuplicateSingleCorrectService(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{}, 10)
	defer done()

	verdict, err := v.CheckDuplicateSingle(context.Background(), activityID)
	require.NoError(t, err)

	assert.True(t, verdict.Blocked)
	assert.NotEmpty(t, verdict.FirstOrderSN)
	assert.False(t, verdict.SecondSuccess)
	assert.Equal(t, "duplicate purchase", verdict.SecondMessage)
}

func TestCheckDuplicateSingleDetectsDoubleSell(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{DuplicateBug: true}, 10)
	defer done()

	verdict, err := v.CheckDuplicateSingle(context.Background(), activityID)
	require.NoError(t, err)

	assert.False(t, verdict.Blocked)
	assert.True(t, verdict.SecondSuccess)
	assert.NotEqual(t, verdict.FirstOrderSN, verdict.SecondOrderSN)
}

func TestCheckDuplicateMultiCorrectService(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{}, 100)
	defer done()

	verdict, err := v.CheckDuplicateMulti(context.Background(), activityID, 12, 2)
	require.NoError(t, err)

	assert.Equal(t, 12, verdict.Users)
	assert.Equal(t, 24, verdict.Requests)
	// one success per user, the retry rejected
	assert.Equal(t, 12, verdict.Success)
	assert.True(t, verdict.WithinLimit)
	assert.True(t, verdict.OnePerUser)
	assert.True(t, verdict.StockConsistent)
	assert.True(t, verdict.Passed)
}

func TestCheckDuplicateMultiDetectsViolation(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{DuplicateBug: true}, 100)
	defer done()

	verdict, err := v.CheckDuplicateMulti(context.Background(), activityID, 12, 2)
	require.NoError(t, err)

	// every retry minted a fresh order
	assert.Equal(t, 24, verdict.Success)
	assert.False(t, verdict.WithinLimit)
	assert.Equal(t, 12, verdict.MultiOrderUsers)
	assert.False(t, verdict.OnePerUser)
	assert.False(t, verdict.Passed)
}

func TestCheckDuplicateMultiNeedsEnoughUsers(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{}, 100)
	defer done()

	_, err := v.CheckDuplicateMulti(context.Background(), activityID, 3, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need at least 10")
}

func TestCheckIdempotencySingleCorrectService(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{}, 10)
	defer done()

	verdict, err := v.CheckIdempotencySingle(context.Background(), activityID)
	require.NoError(t, err)

	assert.True(t, verdict.StockUnchanged)
	assert.False(t, verdict.SecondSuccess)
	assert.True(t, verdict.Passed)
	assert.Equal(t, verdict.StockAfterFirst, verdict.StockAfterSecond)
}

func TestCheckIdempotencySingleDetectsDoubleConsumption(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{DuplicateBug: true}, 10)
	defer done()

	verdict, err := v.CheckIdempotencySingle(context.Background(), activityID)
	require.NoError(t, err)

	// the buggy service consumed stock twice and minted a second order
	assert.False(t, verdict.StockUnchanged)
	assert.True(t, verdict.SecondSuccess)
	assert.False(t, verdict.SameOrder)
	assert.False(t, verdict.Passed)
}

func TestCheckIdempotencyConcurrentCorrectService(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{}, 100)
	defer done()

	verdict, err := v.CheckIdempotencyConcurrent(context.Background(), activityID, 12, 60)
	require.NoError(t, err)

	assert.Equal(t, 60, verdict.Requests)
	assert.Equal(t, verdict.Success+verdict.Failed, verdict.Requests)
	assert.Equal(t, 0, verdict.MultiOrderUsers)
	assert.True(t, verdict.OrdersIdentical)
	assert.Equal(t, int64(verdict.SucceededUsers), verdict.StockReduction)
	assert.True(t, verdict.StockMatchesUsers)
	assert.True(t, verdict.Passed)
}

func TestCheckIdempotencyConcurrentDetectsViolation(t *testing.T) {
	v, activityID, done := newFixture(t, mockseckill.Options{DuplicateBug: true}, 1000)
	defer done()

	verdict, err := v.CheckIdempotencyConcurrent(context.Background(), activityID, 12, 60)
	require.NoError(t, err)

	// with replacement sampling, some identity is bound to repeat and
	// the buggy service hands it a second distinct order
	assert.Greater(t, verdict.MultiOrderUsers, 0)
	assert.False(t, verdict.Passed)
}
