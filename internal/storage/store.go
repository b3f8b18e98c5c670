// Package storage keeps a history of finished runs in a bbolt file so
// past results stay queryable across invocations.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"skbench/internal/driver"
)

const bucketRuns = "runs"

// RunSummary is the compact slice of a run kept in history.
type RunSummary struct {
	TotalRequests int     `json:"total_requests"`
	Success       int     `json:"success"`
	Fail          int     `json:"fail"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
}

type HistoryItem struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	BaseURL    string         `json:"base_url"`
	ActivityID int64          `json:"activity_id"`
	Profile    driver.Profile `json:"profile"`
	Summary    RunSummary     `json:"summary"`
	ReportDir  string         `json:"report_dir,omitempty"`
}

type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the history database at path; empty path
// defaults to ~/.skbench/history.db.
func Open(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(home, ".skbench")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "history.db")
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(item HistoryItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		// Timestamp-prefixed keys keep the cursor in chronological order.
		key := fmt.Sprintf("%020d_%s", item.Timestamp.UnixNano(), item.ID)
		return b.Put([]byte(key), data)
	})
}

// List returns history items, newest first.
func (s *Store) List() ([]HistoryItem, error) {
	var items []HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Get returns the item with the given run id.
func (s *Store) Get(id string) (*HistoryItem, error) {
	var found *HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if item.ID == id {
				found = &item
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return found, nil
}
