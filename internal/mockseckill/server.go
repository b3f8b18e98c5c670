// Package mockseckill is an in-process seckill service for local
// harness runs and tests. The default behavior is a correct service:
// atomic stock decrement, one purchase per user, duplicate submissions
// rejected. The bug switches deliberately break single properties so
// the verification protocols have something to catch.
package mockseckill

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options selects which correctness property to break, if any.
type Options struct {
	// OversellBug keeps reporting success after stock hits zero.
	OversellBug bool
	// DuplicateBug hands out a fresh order on every submission instead
	// of rejecting repeat buyers.
	DuplicateBug bool
	// LatencyJitter adds up to this much artificial delay per request.
	LatencyJitter time.Duration
}

type activity struct {
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

type Server struct {
	opts Options

	mu         sync.Mutex
	users      map[int64]string
	usernames  map[string]int64
	activities map[int64]*activity
	orders     map[string]string // "user:activity" -> orderSn

	nextUser     int64
	nextActivity int64
	nextOrder    int64
}

func New(opts Options) *Server {
	return &Server{
		opts:       opts,
		users:      make(map[int64]string),
		usernames:  make(map[string]int64),
		activities: make(map[int64]*activity),
		orders:     make(map[string]string),
	}
}

// Handler returns the HTTP surface matching the seckill service API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/register", s.handleRegister)
	mux.HandleFunc("/api/activity/create", s.handleCreate)
	mux.HandleFunc("/api/activity/detail/", s.handleDetail)
	mux.HandleFunc("/api/activity/list", s.handleList)
	mux.HandleFunc("/api/order/seckill", s.handleSeckill)
	return mux
}

// Stock reports the remaining stock of an activity.
func (s *Server) Stock(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if act, ok := s.activities[id]; ok {
		return act.AvailableStock
	}
	return -1
}

// OrderCount reports how many orders exist.
func (s *Server) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Server) delay() {
	if s.opts.LatencyJitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.opts.LatencyJitter))))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type baseResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.delay()
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, map[string]any{"baseResp": baseResp{Code: 1001, Msg: "bad request"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usernames[req.Username]; exists {
		writeJSON(w, map[string]any{"baseResp": baseResp{Code: 1002, Msg: "username taken"}})
		return
	}
	s.nextUser++
	id := s.nextUser
	s.users[id] = req.Username
	s.usernames[req.Username] = id
	writeJSON(w, map[string]any{"baseResp": baseResp{}, "userId": id})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.delay()
	var req struct {
		Name         string  `json:"name"`
		ProductID    int64   `json:"productID"`
		SeckillPrice float64 `json:"seckillPrice"`
		StartTime    int64   `json:"startTime"`
		EndTime      int64   `json:"endTime"`
		TotalStock   int64   `json:"totalStock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TotalStock <= 0 {
		writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 2001, Msg: "bad request"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextActivity++
	act := &activity{
		ID:             s.nextActivity,
		Name:           req.Name,
		ProductID:      req.ProductID,
		SeckillPrice:   req.SeckillPrice,
		OriginalPrice:  req.SeckillPrice * 2,
		AvailableStock: req.TotalStock,
		TotalStock:     req.TotalStock,
		Status:         1,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
	}
	s.activities[act.ID] = act
	writeJSON(w, map[string]any{"baseResponse": baseResp{}, "activityID": act.ID})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	s.delay()
	idStr := strings.TrimPrefix(r.URL.Path, "/api/activity/detail/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 2002, Msg: "bad activity id"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.activities[id]
	if !ok {
		writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 2003, Msg: "activity not found"}})
		return
	}
	writeJSON(w, map[string]any{"baseResponse": baseResp{}, "activity": act})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.delay()
	s.mu.Lock()
	defer s.mu.Unlock()
	acts := make([]*activity, 0, len(s.activities))
	for _, act := range s.activities {
		acts = append(acts, act)
	}
	writeJSON(w, map[string]any{"baseResponse": baseResp{}, "activities": acts})
}

func (s *Server) handleSeckill(w http.ResponseWriter, r *http.Request) {
	s.delay()
	var req struct {
		UserID     int64 `json:"userID"`
		ActivityID int64 `json:"activityID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 3001, Msg: "bad request"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.UserID]; !ok {
		writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 3002, Msg: "unknown user"}})
		return
	}
	act, ok := s.activities[req.ActivityID]
	if !ok {
		writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 3003, Msg: "activity not found"}})
		return
	}

	key := fmt.Sprintf("%d:%d", req.UserID, req.ActivityID)
	if !s.opts.DuplicateBug {
		if _, bought := s.orders[key]; bought {
			writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 3004, Msg: "duplicate purchase"}})
			return
		}
	}

	if act.AvailableStock <= 0 {
		if !s.opts.OversellBug {
			writeJSON(w, map[string]any{"baseResponse": baseResp{Code: 3005, Msg: "sold out"}})
			return
		}
		// oversell: report success without consuming anything
		s.nextOrder++
		sn := fmt.Sprintf("SK%09d", s.nextOrder)
		writeJSON(w, map[string]any{
			"baseResponse": baseResp{},
			"orderInfo":    map[string]string{"orderSn": sn},
		})
		return
	}

	act.AvailableStock--
	s.nextOrder++
	sn := fmt.Sprintf("SK%09d", s.nextOrder)
	if !s.opts.DuplicateBug {
		s.orders[key] = sn
	} else {
		s.orders[key+":"+sn] = sn
	}
	writeJSON(w, map[string]any{
		"baseResponse": baseResp{},
		"orderInfo":    map[string]string{"orderSn": sn},
	})
}
