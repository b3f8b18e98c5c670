package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skbench/internal/stats"
)

func TestRegister(t *testing.T) {
	var gotUsername string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/user/register", r.URL.Path)
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		gotUsername = req["username"]
		json.NewEncoder(w).Encode(map[string]any{
			"baseResp": map[string]any{"code": 0, "msg": ""},
			"userId":   int64(42),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	id, err := c.Register(context.Background(), "alice", "test123456")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "alice", gotUsername)
}

func TestRegisterServiceCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"baseResp": map[string]any{"code": 1002, "msg": "username taken"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.Register(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username taken")
}

func TestCreateActivitySendsFixedWindow(t *testing.T) {
	var req createActivityRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/activity/create", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"baseResponse": map[string]any{"code": 0},
			"activityID":   int64(7),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	id, err := c.CreateActivity(context.Background(), "sale", 1, 99.9, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, activityStartTime, req.StartTime)
	assert.Equal(t, activityEndTime, req.EndTime)
	assert.Equal(t, int64(100), req.TotalStock)
}

func TestGetActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/activity/detail/7", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"baseResponse": map[string]any{"code": 0},
			"activity": map[string]any{
				"id":             7,
				"availableStock": 90,
				"totalStock":     100,
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	act, err := c.GetActivity(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(90), act.AvailableStock)
	assert.Equal(t, int64(100), act.TotalStock)
}

func TestSeckillSuccessRecordsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/order/seckill", r.URL.Path)
		require.Equal(t, "42", r.Header.Get("X-User-ID"))
		json.NewEncoder(w).Encode(map[string]any{
			"baseResponse": map[string]any{"code": 0},
			"orderInfo":    map[string]string{"orderSn": "SK000000001"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	agg := stats.NewAggregator()
	res := c.Seckill(context.Background(), 42, 7, agg)

	assert.True(t, res.Success)
	assert.Equal(t, "SK000000001", res.OrderSN)
	assert.Greater(t, res.LatencyMs, 0.0)

	total, success, failed := agg.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"SK000000001"}, agg.Orders())
}

func TestSeckillServiceRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"baseResponse": map[string]any{"code": 3005, "msg": "sold out"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	agg := stats.NewAggregator()
	res := c.Seckill(context.Background(), 1, 7, agg)

	assert.False(t, res.Success)
	assert.Equal(t, "sold out", res.Message)
	assert.Equal(t, http.StatusOK, res.Status)

	s := agg.Snapshot()
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.ErrorCounts["sold out"])
}

func TestSeckillNon200IsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"baseResponse": map[string]any{"code": 0},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	agg := stats.NewAggregator()
	res := c.Seckill(context.Background(), 1, 7, agg)

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)

	s := agg.Snapshot()
	assert.Equal(t, 1, s.StatusCounts[http.StatusTooManyRequests])
}

func TestSeckillUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	agg := stats.NewAggregator()
	res := c.Seckill(context.Background(), 1, 7, agg)

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unparseable response")

	total, _, failed := agg.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, failed)
}

func TestSeckillTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(srv.URL, nil)
	agg := stats.NewAggregator()
	res := c.Seckill(context.Background(), 1, 7, agg)

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "request error")
	assert.Equal(t, 0.0, res.LatencyMs)

	total, _, failed := agg.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, failed)
}
