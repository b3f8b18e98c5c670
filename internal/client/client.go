// Package client issues the remote seckill API calls and translates
// HTTP/JSON responses into typed outcomes. All order submissions feed a
// stats.Aggregator; transport failures never escape as errors from the
// submission path.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"skbench/internal/stats"
)

const requestTimeout = 10 * time.Second

// Fixed activity scheduling window so repeated runs are comparable.
const (
	activityStartTime int64 = 1725771925
	activityEndTime   int64 = 1825771925
)

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000

	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: t,
		},
		log: log,
	}
}

// BaseURL returns the configured service address.
func (c *Client) BaseURL() string { return c.base }

// --- wire schemas ---

type baseResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	BaseResp baseResp `json:"baseResp"`
	UserID   int64    `json:"userId"`
}

type createActivityRequest struct {
	Name         string  `json:"name"`
	ProductID    int64   `json:"productID"`
	SeckillPrice float64 `json:"seckillPrice"`
	StartTime    int64   `json:"startTime"`
	EndTime      int64   `json:"endTime"`
	TotalStock   int64   `json:"totalStock"`
}

type createActivityResponse struct {
	BaseResponse baseResp `json:"baseResponse"`
	ActivityID   int64    `json:"activityID"`
}

// Activity is the remote flash-sale entity. The harness only ever reads
// or creates it; totalStock-availableStock vs recorded successes is what
// the verification protocols audit.
type Activity struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	ProductID      int64   `json:"productId"`
	SeckillPrice   float64 `json:"seckillPrice"`
	OriginalPrice  float64 `json:"originalPrice"`
	AvailableStock int64   `json:"availableStock"`
	TotalStock     int64   `json:"totalStock"`
	Status         int     `json:"status"`
	StartTime      int64   `json:"startTime"`
	EndTime        int64   `json:"endTime"`
}

type activityDetailResponse struct {
	BaseResponse baseResp  `json:"baseResponse"`
	Activity     *Activity `json:"activity"`
}

type activityListResponse struct {
	BaseResponse baseResp   `json:"baseResponse"`
	Activities   []Activity `json:"activities"`
}

type seckillRequest struct {
	UserID     int64 `json:"userID"`
	ActivityID int64 `json:"activityID"`
}

type seckillResponse struct {
	BaseResponse baseResp `json:"baseResponse"`
	OrderInfo    struct {
		OrderSN string `json:"orderSn"`
	} `json:"orderInfo"`
}

// --- operations ---

// Register creates one test user and returns the service-assigned id.
func (c *Client) Register(ctx context.Context, username, password string) (int64, error) {
	body, err := json.Marshal(registerRequest{Username: username, Password: password})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/user/register", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("register %s: %w", username, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("register %s: HTTP %d", username, resp.StatusCode)
	}
	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("register %s: decode: %w", username, err)
	}
	if out.BaseResp.Code != 0 {
		return 0, fmt.Errorf("register %s: code %d: %s", username, out.BaseResp.Code, out.BaseResp.Msg)
	}
	return out.UserID, nil
}

// CreateActivity creates a flash-sale activity with the fixed scheduling
// window and returns its id.
func (c *Client) CreateActivity(ctx context.Context, name string, productID int64, price float64, stock int64) (int64, error) {
	body, err := json.Marshal(createActivityRequest{
		Name:         name,
		ProductID:    productID,
		SeckillPrice: price,
		StartTime:    activityStartTime,
		EndTime:      activityEndTime,
		TotalStock:   stock,
	})
	if err != nil {
		return 0, err
	}

	c.log.Info("creating activity",
		zap.String("name", name),
		zap.Int64("productID", productID),
		zap.Int64("stock", stock))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/activity/create", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("create activity: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("create activity: HTTP %d", resp.StatusCode)
	}
	var out createActivityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("create activity: decode: %w", err)
	}
	if out.BaseResponse.Code != 0 {
		return 0, fmt.Errorf("create activity: code %d: %s", out.BaseResponse.Code, out.BaseResponse.Msg)
	}
	c.log.Info("activity created", zap.Int64("activityID", out.ActivityID))
	return out.ActivityID, nil
}

// GetActivity fetches an activity snapshot. Read-only; does not record
// into any aggregator.
func (c *Client) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	url := fmt.Sprintf("%s/api/activity/detail/%d", c.base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get activity %d: %w", id, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get activity %d: HTTP %d", id, resp.StatusCode)
	}
	var out activityDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("get activity %d: decode: %w", id, err)
	}
	if out.BaseResponse.Code != 0 {
		return nil, fmt.Errorf("get activity %d: code %d: %s", id, out.BaseResponse.Code, out.BaseResponse.Msg)
	}
	if out.Activity == nil {
		return nil, fmt.Errorf("get activity %d: missing activity payload", id)
	}
	return out.Activity, nil
}

// ListActivities fetches all activities; empty slice on a clean "none".
func (c *Client) ListActivities(ctx context.Context) ([]Activity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/activity/list", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list activities: HTTP %d", resp.StatusCode)
	}
	var out activityListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("list activities: decode: %w", err)
	}
	if out.BaseResponse.Code != 0 {
		return nil, fmt.Errorf("list activities: code %d: %s", out.BaseResponse.Code, out.BaseResponse.Msg)
	}
	return out.Activities, nil
}

// Result classifies one seckill submission. Message carries the failure
// reason when Success is false.
type Result struct {
	Success   bool
	OrderSN   string
	Message   string
	Status    int
	LatencyMs float64
}

// Seckill submits one order. Every invocation records exactly one
// outcome into agg; transport failures become failed outcomes with zero
// latency rather than errors, so callers never need an error path here.
func (c *Client) Seckill(ctx context.Context, userID, activityID int64, agg *stats.Aggregator) Result {
	body, _ := json.Marshal(seckillRequest{UserID: userID, ActivityID: activityID})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/order/seckill", bytes.NewReader(body))
	if err != nil {
		res := Result{Message: fmt.Sprintf("request error: %v", err)}
		agg.Record(stats.Outcome{Message: res.Message})
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	// The service's rate limiter keys on this header.
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		res := Result{Message: fmt.Sprintf("request error: %v", err)}
		agg.Record(stats.Outcome{Message: res.Message})
		return res
	}
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	drain(resp.Body)

	var out seckillResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		msg := fmt.Sprintf("unparseable response: %s", truncate(string(raw), 100))
		agg.Record(stats.Outcome{LatencyMs: latencyMs, Status: resp.StatusCode, Message: msg})
		return Result{Message: msg, Status: resp.StatusCode, LatencyMs: latencyMs}
	}

	success := resp.StatusCode == http.StatusOK && out.BaseResponse.Code == 0
	res := Result{
		Success:   success,
		Status:    resp.StatusCode,
		LatencyMs: latencyMs,
	}
	if success {
		res.OrderSN = out.OrderInfo.OrderSN
	} else {
		res.Message = out.BaseResponse.Msg
		if res.Message == "" {
			res.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
	}

	o := stats.Outcome{
		Success:   success,
		LatencyMs: latencyMs,
		Status:    resp.StatusCode,
		OrderSN:   res.OrderSN,
	}
	if !success {
		o.Message = res.Message
	}
	agg.Record(o)
	return res
}

func drain(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
