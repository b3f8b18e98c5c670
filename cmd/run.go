package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skbench/internal/driver"
	"skbench/internal/report"
	"skbench/internal/storage"
)

var (
	runActivityID int64
	runStock      int64

	customConcurrent int
	customUsers      int
	customDuration   int
	customDelayMs    int
	customJitterMs   int
)

var runCmd = &cobra.Command{
	Use:   "run [profile]",
	Short: "Run a sustained load test",
	Long: `Run a sustained load test against the seckill endpoint using a named
profile (` + strings.Join(driver.PresetNames(), ", ") + `) or custom
parameters. With --activity 0 a fresh activity is created first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return execRunPreset(args[0])
		}
		if !cmd.Flags().Changed("concurrent") && !cmd.Flags().Changed("users") {
			return execRunPreset("medium")
		}
		return execRun(driver.Profile{
			Name:            "custom",
			ConcurrentUsers: customConcurrent,
			TotalUsers:      customUsers,
			Duration:        time.Duration(customDuration) * time.Second,
			Delay:           time.Duration(customDelayMs) * time.Millisecond,
			Jitter:          time.Duration(customJitterMs) * time.Millisecond,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int64Var(&runActivityID, "activity", 0, "target activity id (0 creates one)")
	runCmd.Flags().Int64Var(&runStock, "stock", 1000, "stock for a freshly created activity")
	runCmd.Flags().IntVarP(&customConcurrent, "concurrent", "c", 50, "concurrent workers (custom profile)")
	runCmd.Flags().IntVarP(&customUsers, "users", "U", 200, "total users to register (custom profile)")
	runCmd.Flags().IntVarP(&customDuration, "duration", "d", 120, "test duration in seconds (custom profile)")
	runCmd.Flags().IntVar(&customDelayMs, "delay", 200, "base delay between a worker's requests, ms")
	runCmd.Flags().IntVar(&customJitterMs, "jitter", 300, "random extra delay per request, ms")
}

func execRunPreset(name string) error {
	p, ok := driver.Presets()[name]
	if !ok {
		return fmt.Errorf("unknown profile %q (have: %s)", name, strings.Join(driver.PresetNames(), ", "))
	}
	return execRun(p)
}

func execRun(profile driver.Profile) error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.close()

	ctx, cancel := signalContext()
	defer cancel()

	activityID, err := ensureActivity(ctx, h, runActivityID, runStock)
	if err != nil {
		return err
	}

	printRunHeader(profile, activityID)

	d := driver.New(h.client, h.pool, h.log)
	rep, err := d.Run(ctx, activityID, profile)
	if err != nil {
		return err
	}

	printRunSummary(rep)

	w := report.NewWriter(reportsDir, h.log)
	dir, err := w.Write(rep, baseURL)
	if err != nil {
		h.log.Warn("report generation failed", zap.Error(err))
	} else {
		fmt.Printf("\nReports saved to %s\n", dir)
	}

	saveHistory(h, rep, dir)
	return nil
}

func printRunHeader(p driver.Profile, activityID int64) {
	fmt.Printf("\nSTARTING SECKILL LOAD TEST\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Target     : %s\n", baseURL)
	fmt.Printf("Activity   : %d\n", activityID)
	fmt.Printf("Profile    : %s\n", p.Name)
	fmt.Printf("Workers    : %d (pool of %d users)\n", p.ConcurrentUsers, p.TotalUsers)
	fmt.Printf("Duration   : %s\n", p.Duration)
	fmt.Printf("Pacing     : %s + up to %s jitter\n", p.Delay, p.Jitter)
	fmt.Printf("======================================================================\n\n")
}

func printRunSummary(rep *driver.RunReport) {
	s := rep.Stats
	elapsed := rep.End.Sub(rep.Start)
	qps := 0.0
	if elapsed > 0 {
		qps = float64(s.Total) / elapsed.Seconds()
	}

	fmt.Printf("\nLOAD TEST RESULTS\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Total Duration : %s\n", elapsed.Round(time.Second))
	fmt.Printf("Requests Sent  : %d\n", s.Total)
	fmt.Printf("Success        : %d\n", s.Success)
	fmt.Printf("Failures       : %d\n", s.Failed)
	fmt.Printf("Success Rate   : %.2f%%\n", s.SuccessRate)
	fmt.Printf("Actual QPS     : %.2f\n", qps)
	fmt.Printf("\nRESPONSE TIMES (ms)\n")
	fmt.Printf("   Avg : %.2f\n", s.AvgLatencyMs)
	fmt.Printf("   P50 : %.2f\n", s.P50)
	fmt.Printf("   P90 : %.2f\n", s.P90)
	fmt.Printf("   P95 : %.2f\n", s.P95)
	fmt.Printf("   P99 : %.2f\n", s.P99)
	fmt.Printf("   Max : %.2f\n", s.MaxLatencyMs)

	if rep.Before != nil && rep.After != nil {
		fmt.Printf("\nINVENTORY\n")
		fmt.Printf("   Stock %d -> %d (reduction %d)\n",
			rep.Before.AvailableStock, rep.After.AvailableStock, rep.StockReduction)
		fmt.Printf("   Distinct orders: %d\n", rep.DistinctOrders)
		if rep.StockMismatch {
			fmt.Printf("   WARNING: stock reduction does not match successful orders\n")
		}
	}

	if len(s.ErrorCounts) > 0 {
		type errRow struct {
			msg   string
			count int
		}
		rows := make([]errRow, 0, len(s.ErrorCounts))
		for msg, count := range s.ErrorCounts {
			rows = append(rows, errRow{msg, count})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].count > rows[j].count })
		fmt.Printf("\nFAILURE SUMMARY\n")
		for _, r := range rows {
			fmt.Printf("   %d x %s\n", r.count, r.msg)
		}
	}
	fmt.Printf("======================================================================\n")
}

// saveHistory records the run in the bbolt history; failures are logged
// and otherwise ignored so they never mask the run itself.
func saveHistory(h *harness, rep *driver.RunReport, reportDir string) {
	store, err := storage.Open(historyDB)
	if err != nil {
		h.log.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	item := storage.HistoryItem{
		ID:         uuid.NewString(),
		Timestamp:  rep.Start,
		BaseURL:    baseURL,
		ActivityID: rep.ActivityID,
		Profile:    rep.Profile,
		Summary: storage.RunSummary{
			TotalRequests: rep.Stats.Total,
			Success:       rep.Stats.Success,
			Fail:          rep.Stats.Failed,
			SuccessRate:   rep.Stats.SuccessRate,
			AvgLatencyMs:  rep.Stats.AvgLatencyMs,
			P99LatencyMs:  rep.Stats.P99,
		},
		ReportDir: reportDir,
	}
	if err := store.Save(item); err != nil {
		h.log.Warn("could not save run to history", zap.Error(err))
	}
}
