// Package report renders a finished run into a per-run directory:
// config.json, statistics.csv, interactive charts and an HTML summary.
// It only consumes the RunReport; nothing here touches the network.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"skbench/internal/driver"
)

type Writer struct {
	root string
	log  *zap.Logger
}

// NewWriter writes run directories under root (created on demand).
func NewWriter(root string, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{root: root, log: log}
}

// Write renders every artifact for the run and returns the directory.
func (w *Writer) Write(rep *driver.RunReport, baseURL string) (string, error) {
	dir := filepath.Join(w.root, rep.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := w.writeConfig(dir, rep, baseURL); err != nil {
		return dir, err
	}
	if err := w.writeStatisticsCSV(dir, rep); err != nil {
		return dir, err
	}
	if err := w.writeCharts(dir, rep); err != nil {
		return dir, err
	}
	if err := w.writeHTML(dir, rep); err != nil {
		return dir, err
	}
	w.log.Info("report written", zap.String("dir", dir))
	return dir, nil
}

type runConfig struct {
	TestID          string  `json:"test_id"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationSeconds float64 `json:"duration"`
	ConcurrentUsers int     `json:"concurrent_users"`
	TotalUsers      int     `json:"total_users"`
	ActivityID      int64   `json:"activity_id"`
	Stock           int64   `json:"stock"`
	DelayMs         int64   `json:"delay_ms"`
	JitterMs        int64   `json:"jitter_ms"`
	BaseURL         string  `json:"base_url"`
}

func (w *Writer) writeConfig(dir string, rep *driver.RunReport, baseURL string) error {
	cfg := runConfig{
		TestID:          rep.RunID,
		StartTime:       rep.Start.Format("2006-01-02 15:04:05"),
		EndTime:         rep.End.Format("2006-01-02 15:04:05"),
		DurationSeconds: rep.End.Sub(rep.Start).Seconds(),
		ConcurrentUsers: rep.Workers,
		TotalUsers:      rep.Profile.TotalUsers,
		ActivityID:      rep.ActivityID,
		DelayMs:         rep.Profile.Delay.Milliseconds(),
		JitterMs:        rep.Profile.Jitter.Milliseconds(),
		BaseURL:         baseURL,
	}
	if rep.Before != nil {
		cfg.Stock = rep.Before.TotalStock
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

func (w *Writer) writeStatisticsCSV(dir string, rep *driver.RunReport) error {
	f, err := os.Create(filepath.Join(dir, "statistics.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	s := rep.Stats
	rows := [][]string{
		{"Metric", "Value"},
		{"Total Requests", strconv.Itoa(s.Total)},
		{"Successful Requests", strconv.Itoa(s.Success)},
		{"Failed Requests", strconv.Itoa(s.Failed)},
		{"Success Rate", fmt.Sprintf("%.2f%%", s.SuccessRate)},
		{"Average Response Time (ms)", fmt.Sprintf("%.2f", s.AvgLatencyMs)},
		{"Min Response Time (ms)", fmt.Sprintf("%.2f", s.MinLatencyMs)},
		{"Max Response Time (ms)", fmt.Sprintf("%.2f", s.MaxLatencyMs)},
		{"P50 Response Time (ms)", fmt.Sprintf("%.2f", s.P50)},
		{"P90 Response Time (ms)", fmt.Sprintf("%.2f", s.P90)},
		{"P95 Response Time (ms)", fmt.Sprintf("%.2f", s.P95)},
		{"P99 Response Time (ms)", fmt.Sprintf("%.2f", s.P99)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}

	cw.Write([]string{})
	cw.Write([]string{"Status Code", "Count", "Percent"})
	codes := make([]int, 0, len(s.StatusCounts))
	for code := range s.StatusCounts {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := s.StatusCounts[code]
		pct := 0.0
		if s.Total > 0 {
			pct = float64(count) / float64(s.Total) * 100
		}
		cw.Write([]string{strconv.Itoa(code), strconv.Itoa(count), fmt.Sprintf("%.2f%%", pct)})
	}

	cw.Write([]string{})
	cw.Write([]string{"Error Message", "Count"})
	type errRow struct {
		msg   string
		count int
	}
	errs := make([]errRow, 0, len(s.ErrorCounts))
	for msg, count := range s.ErrorCounts {
		errs = append(errs, errRow{msg, count})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].count > errs[j].count })
	for _, e := range errs {
		cw.Write([]string{e.msg, strconv.Itoa(e.count)})
	}

	if len(s.Orders) > 0 {
		cw.Write([]string{})
		cw.Write([]string{"Successful Orders", strconv.Itoa(len(s.Orders))})
	}
	return nil
}
