package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"skbench/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execHistory()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func execHistory() error {
	store, err := storage.Open(historyDB)
	if err != nil {
		return err
	}
	defer store.Close()

	items, err := store.List()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	fmt.Printf("%-19s  %-9s  %8s  %8s  %7s  %8s  %8s\n",
		"WHEN", "PROFILE", "REQS", "OK", "RATE", "AVG(ms)", "P99(ms)")
	for _, it := range items {
		fmt.Printf("%-19s  %-9s  %8d  %8d  %6.2f%%  %8.2f  %8.2f\n",
			it.Timestamp.Format("2006-01-02 15:04:05"),
			it.Profile.Name,
			it.Summary.TotalRequests,
			it.Summary.Success,
			it.Summary.SuccessRate,
			it.Summary.AvgLatencyMs,
			it.Summary.P99LatencyMs)
	}
	return nil
}
