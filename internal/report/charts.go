package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"skbench/internal/driver"
)

const latencyBins = 50

// writeCharts renders the four run charts into a single charts.html:
// latency distribution, QPS over time, status code split and
// success/failure split.
func (w *Writer) writeCharts(dir string, rep *driver.RunReport) error {
	s := rep.Stats
	page := components.NewPage()
	page.PageTitle = "skbench charts " + rep.RunID

	// 1. latency distribution
	if len(s.LatenciesMs) > 0 {
		labels, counts := binLatencies(s.LatenciesMs, latencyBins)
		data := make([]opts.BarData, len(counts))
		for i, c := range counts {
			data[i] = opts.BarData{Value: c}
		}
		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: "Response time distribution"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "ms"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "requests"}),
		)
		bar.SetXAxis(labels).AddSeries("requests", data)
		page.AddCharts(bar)
	}

	// 2. QPS over time
	if len(s.QPSOffsets) > 0 {
		xs := make([]string, len(s.QPSOffsets))
		ys := make([]opts.LineData, len(s.QPSValues))
		for i, off := range s.QPSOffsets {
			xs[i] = fmt.Sprintf("%.1f", off)
			ys[i] = opts.LineData{Value: s.QPSValues[i]}
		}
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: "QPS over time"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "seconds"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "req/s"}),
		)
		line.SetXAxis(xs).AddSeries("qps", ys)
		page.AddCharts(line)
	}

	// 3. status code split
	if len(s.StatusCounts) > 0 {
		data := make([]opts.PieData, 0, len(s.StatusCounts))
		for code, count := range s.StatusCounts {
			data = append(data, opts.PieData{Name: fmt.Sprintf("HTTP %d", code), Value: count})
		}
		pie := charts.NewPie()
		pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "HTTP status codes"}))
		pie.AddSeries("status", data)
		page.AddCharts(pie)
	}

	// 4. success vs failure
	if s.Total > 0 {
		pie := charts.NewPie()
		pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Success vs failure"}))
		pie.AddSeries("requests", []opts.PieData{
			{Name: "success", Value: s.Success},
			{Name: "failure", Value: s.Failed},
		})
		page.AddCharts(pie)
	}

	f, err := os.Create(filepath.Join(dir, "charts.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

// binLatencies splits samples into equal-width buckets between min and
// max, returning bucket labels and counts.
func binLatencies(samples []float64, bins int) ([]string, []int) {
	lo, hi := samples[0], samples[0]
	for _, v := range samples {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return []string{fmt.Sprintf("%.1f", lo)}, []int{len(samples)}
	}

	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, v := range samples {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.1f", lo+width*float64(i))
	}
	return labels, counts
}
