package mockseckill

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skbench/internal/client"
	"skbench/internal/stats"
)

func TestCorrectServiceLifecycle(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := client.New(srv.URL, nil)
	ctx := context.Background()

	userID, err := c.Register(ctx, "buyer", "test123456")
	require.NoError(t, err)

	activityID, err := c.CreateActivity(ctx, "sale", 1, 9.9, 2)
	require.NoError(t, err)

	agg := stats.NewAggregator()
	first := c.Seckill(ctx, userID, activityID, agg)
	require.True(t, first.Success)
	assert.NotEmpty(t, first.OrderSN)
	assert.Equal(t, int64(1), s.Stock(activityID))

	// same buyer again: rejected, stock untouched
	second := c.Seckill(ctx, userID, activityID, agg)
	assert.False(t, second.Success)
	assert.Equal(t, "duplicate purchase", second.Message)
	assert.Equal(t, int64(1), s.Stock(activityID))
	assert.Equal(t, 1, s.OrderCount())
}

func TestDuplicateUsernameRejected(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := client.New(srv.URL, nil)
	_, err := c.Register(context.Background(), "dup", "pw1")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "dup", "pw2")
	require.Error(t, err)
}

func TestSoldOut(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := client.New(srv.URL, nil)
	ctx := context.Background()

	activityID, err := c.CreateActivity(ctx, "tiny", 1, 9.9, 1)
	require.NoError(t, err)

	a, _ := c.Register(ctx, "a", "pw")
	b, _ := c.Register(ctx, "b", "pw")

	agg := stats.NewAggregator()
	require.True(t, c.Seckill(ctx, a, activityID, agg).Success)

	res := c.Seckill(ctx, b, activityID, agg)
	assert.False(t, res.Success)
	assert.Equal(t, "sold out", res.Message)
	assert.Equal(t, int64(0), s.Stock(activityID))
}

func TestUnknownUserAndActivity(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := client.New(srv.URL, nil)
	ctx := context.Background()

	agg := stats.NewAggregator()
	res := c.Seckill(ctx, 999, 1, agg)
	assert.False(t, res.Success)
	assert.Equal(t, "unknown user", res.Message)

	userID, err := c.Register(ctx, "ghost", "pw")
	require.NoError(t, err)
	res = c.Seckill(ctx, userID, 999, agg)
	assert.False(t, res.Success)
	assert.Equal(t, "activity not found", res.Message)

	_, err = c.GetActivity(ctx, 999)
	require.Error(t, err)
}

func TestOversellBugKeepsSelling(t *testing.T) {
	s := New(Options{OversellBug: true})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := client.New(srv.URL, nil)
	ctx := context.Background()

	activityID, err := c.CreateActivity(ctx, "buggy", 1, 9.9, 1)
	require.NoError(t, err)

	a, _ := c.Register(ctx, "a", "pw")
	b, _ := c.Register(ctx, "b", "pw")

	agg := stats.NewAggregator()
	require.True(t, c.Seckill(ctx, a, activityID, agg).Success)
	// stock is gone but the bug reports success anyway
	assert.True(t, c.Seckill(ctx, b, activityID, agg).Success)
	assert.Equal(t, int64(0), s.Stock(activityID))
}

func TestListActivities(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := client.New(srv.URL, nil)
	ctx := context.Background()

	acts, err := c.ListActivities(ctx)
	require.NoError(t, err)
	assert.Empty(t, acts)

	_, err = c.CreateActivity(ctx, "one", 1, 9.9, 10)
	require.NoError(t, err)
	_, err = c.CreateActivity(ctx, "two", 2, 19.9, 20)
	require.NoError(t, err)

	acts, err = c.ListActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, acts, 2)
}
