package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"skbench/internal/mockseckill"
)

var (
	mockPort         int
	mockOversellBug  bool
	mockDuplicateBug bool
	mockJitter       time.Duration
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a local in-memory seckill service",
	Long: `Run a local in-memory seckill service implementing the same API the
harness targets. By default it behaves correctly; the bug flags break
single properties so the verify subcommands have something to catch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := mockseckill.New(mockseckill.Options{
			OversellBug:   mockOversellBug,
			DuplicateBug:  mockDuplicateBug,
			LatencyJitter: mockJitter,
		})
		addr := fmt.Sprintf(":%d", mockPort)
		fmt.Printf("mock seckill service listening on %s (oversell_bug=%v duplicate_bug=%v)\n",
			addr, mockOversellBug, mockDuplicateBug)
		return http.ListenAndServe(addr, srv.Handler())
	},
}

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().IntVarP(&mockPort, "port", "p", 8080, "listen port")
	mockCmd.Flags().BoolVar(&mockOversellBug, "oversell-bug", false, "keep selling after stock hits zero")
	mockCmd.Flags().BoolVar(&mockDuplicateBug, "duplicate-bug", false, "hand out a fresh order on every submission")
	mockCmd.Flags().DurationVar(&mockJitter, "jitter", 0, "artificial per-request latency cap")
}
