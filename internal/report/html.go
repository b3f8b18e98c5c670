package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"

	"skbench/internal/driver"
)

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Seckill load test report - {{.RunID}}</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 1100px; margin: 0 auto; padding: 20px; }
h1, h2 { color: #0066cc; }
.header { background-color: #f5f5f5; padding: 20px; border-radius: 5px; margin-bottom: 20px; }
.summary { display: flex; flex-wrap: wrap; gap: 20px; margin-bottom: 30px; }
.card { background-color: #f9f9f9; border-radius: 5px; padding: 15px; flex: 1; min-width: 200px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
th, td { padding: 10px; text-align: left; border-bottom: 1px solid #ddd; }
th { background-color: #f2f2f2; }
.ok { color: #4CAF50; }
.bad { color: #F44336; }
.warn { color: #FFAF00; }
</style>
</head>
<body>
<div class="header">
<h1>Seckill load test report</h1>
<p>Run ID: {{.RunID}}</p>
<p>Start: {{.Start}}</p>
<p>End: {{.End}}</p>
<p>Duration: {{printf "%.2f" .DurationSec}}s</p>
{{if .StockMismatch}}<p class="bad">Stock reduction did not match successful orders.</p>{{end}}
</div>

<h2>Summary</h2>
<div class="summary">
<div class="card">
<h3>Requests</h3>
<p>Total: {{.Total}}</p>
<p>Success: <span class="ok">{{.Success}}</span></p>
<p>Failed: <span class="bad">{{.Failed}}</span></p>
<p>Success rate: {{printf "%.2f" .SuccessRate}}%</p>
</div>
<div class="card">
<h3>Performance</h3>
<p>Average QPS: {{printf "%.2f" .AvgQPS}}</p>
<p>Average latency: {{printf "%.2f" .AvgLatency}}ms</p>
<p>Min latency: {{printf "%.2f" .MinLatency}}ms</p>
<p>Max latency: {{printf "%.2f" .MaxLatency}}ms</p>
</div>
<div class="card">
<h3>Latency distribution</h3>
<p>P50: {{printf "%.2f" .P50}}ms</p>
<p>P90: {{printf "%.2f" .P90}}ms</p>
<p>P95: {{printf "%.2f" .P95}}ms</p>
<p>P99: {{printf "%.2f" .P99}}ms</p>
</div>
<div class="card">
<h3>Inventory</h3>
<p>Stock reduction: {{.StockReduction}}</p>
<p>Distinct orders: {{.DistinctOrders}}</p>
</div>
</div>

<p><a href="charts.html">Interactive charts</a></p>

<h2>Status codes</h2>
<table>
<tr><th>Status</th><th>Count</th><th>Percent</th></tr>
{{range .StatusRows}}<tr><td>HTTP {{.Code}}</td><td>{{.Count}}</td><td>{{printf "%.2f" .Percent}}%</td></tr>
{{end}}
</table>

<h2>Errors</h2>
<table>
<tr><th>Message</th><th>Count</th></tr>
{{range .ErrorRows}}<tr><td>{{.Message}}</td><td>{{.Count}}</td></tr>
{{end}}
</table>

<h2>Orders</h2>
<p>Successful orders: {{.OrderCount}}</p>
</body>
</html>
`

type statusRow struct {
	Code    int
	Count   int
	Percent float64
}

type errorRow struct {
	Message string
	Count   int
}

type htmlData struct {
	RunID          string
	Start, End     string
	DurationSec    float64
	StockMismatch  bool
	Total          int
	Success        int
	Failed         int
	SuccessRate    float64
	AvgQPS         float64
	AvgLatency     float64
	MinLatency     float64
	MaxLatency     float64
	P50, P90       float64
	P95, P99       float64
	StockReduction int64
	DistinctOrders int
	StatusRows     []statusRow
	ErrorRows      []errorRow
	OrderCount     int
}

func (w *Writer) writeHTML(dir string, rep *driver.RunReport) error {
	s := rep.Stats
	dur := rep.End.Sub(rep.Start).Seconds()

	data := htmlData{
		RunID:          rep.RunID,
		Start:          rep.Start.Format("2006-01-02 15:04:05"),
		End:            rep.End.Format("2006-01-02 15:04:05"),
		DurationSec:    dur,
		StockMismatch:  rep.StockMismatch,
		Total:          s.Total,
		Success:        s.Success,
		Failed:         s.Failed,
		SuccessRate:    s.SuccessRate,
		AvgLatency:     s.AvgLatencyMs,
		MinLatency:     s.MinLatencyMs,
		MaxLatency:     s.MaxLatencyMs,
		P50:            s.P50,
		P90:            s.P90,
		P95:            s.P95,
		P99:            s.P99,
		StockReduction: rep.StockReduction,
		DistinctOrders: rep.DistinctOrders,
		OrderCount:     len(s.Orders),
	}
	if dur > 0 {
		data.AvgQPS = float64(s.Total) / dur
	}

	for code, count := range s.StatusCounts {
		pct := 0.0
		if s.Total > 0 {
			pct = float64(count) / float64(s.Total) * 100
		}
		data.StatusRows = append(data.StatusRows, statusRow{code, count, pct})
	}
	sort.Slice(data.StatusRows, func(i, j int) bool { return data.StatusRows[i].Code < data.StatusRows[j].Code })

	for msg, count := range s.ErrorCounts {
		data.ErrorRows = append(data.ErrorRows, errorRow{msg, count})
	}
	sort.Slice(data.ErrorRows, func(i, j int) bool { return data.ErrorRows[i].Count > data.ErrorRows[j].Count })

	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("report template: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "report.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}
