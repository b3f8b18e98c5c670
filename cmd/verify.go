package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skbench/internal/verify"
)

// errVerificationFailed surfaces a FAIL verdict as a non-zero exit
// without short-circuiting deferred cleanup.
var errVerificationFailed = errors.New("verification failed")

var (
	verifyActivityID int64
	verifyStock      int64
	verifyConcurrent int
	verifyUsers      int
	verifyAttempts   int
	verifyRequests   int
	verifyDeadline   time.Duration
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Audit the service's correctness properties",
}

var verifyOversoldCmd = &cobra.Command{
	Use:   "oversold",
	Short: "Flood the activity and check that stock never goes negative",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execVerifyOversold(verifyActivityID, verifyConcurrent)
	},
}

var verifyDuplicateCmd = &cobra.Command{
	Use:   "duplicate",
	Short: "One user submits twice; the second attempt must be rejected",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execVerifyDuplicate(verifyActivityID)
	},
}

var verifyDuplicateMultiCmd = &cobra.Command{
	Use:   "duplicate-multi",
	Short: "Many users retry; at most one order per user may survive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execVerifyDuplicateMulti(verifyActivityID, verifyUsers, verifyAttempts)
	},
}

var verifyIdempotentCmd = &cobra.Command{
	Use:   "idempotent",
	Short: "Resubmit an identical request; stock must not move again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execVerifyIdempotent(verifyActivityID)
	},
}

var verifyIdempotentConcurrentCmd = &cobra.Command{
	Use:   "idempotent-concurrent",
	Short: "Random repeated submissions under concurrency; one order per user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execVerifyIdempotentConcurrent(verifyActivityID, verifyUsers, verifyRequests)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.AddCommand(verifyOversoldCmd, verifyDuplicateCmd, verifyDuplicateMultiCmd,
		verifyIdempotentCmd, verifyIdempotentConcurrentCmd)

	// a FAIL verdict is an outcome, not a usage mistake
	verifyCmd.SilenceUsage = true
	verifyCmd.SilenceErrors = true

	verifyCmd.PersistentFlags().Int64Var(&verifyActivityID, "activity", 0, "target activity id (0 creates one)")
	verifyCmd.PersistentFlags().Int64Var(&verifyStock, "stock", 100, "stock for a freshly created activity")

	verifyOversoldCmd.Flags().IntVarP(&verifyConcurrent, "concurrent", "c", 50, "burst concurrency")
	verifyOversoldCmd.Flags().DurationVar(&verifyDeadline, "deadline", 2*time.Minute, "wall-clock cap for the burst (0 waits forever)")

	verifyDuplicateMultiCmd.Flags().IntVarP(&verifyUsers, "users", "U", 50, "users to register")
	verifyDuplicateMultiCmd.Flags().IntVar(&verifyAttempts, "attempts", 2, "attempts per user")

	verifyIdempotentConcurrentCmd.Flags().IntVarP(&verifyUsers, "users", "U", 50, "users to register")
	verifyIdempotentConcurrentCmd.Flags().IntVarP(&verifyRequests, "requests", "r", 500, "total submissions")
}

// withVerifier builds the harness, resolves the activity and hands a
// ready Verifier to fn. The verdict fn returns is printed as JSON plus
// a one-line pass/fail.
func withVerifier(activityID int64, fn func(ctx context.Context, v *verify.Verifier, activityID int64) (any, bool, error)) error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.close()

	ctx, cancel := signalContext()
	defer cancel()

	id, err := ensureActivity(ctx, h, activityID, verifyStock)
	if err != nil {
		return err
	}

	verdict, passed, err := fn(ctx, verify.New(h.client, h.pool, h.log), id)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if passed {
		fmt.Println("\nPASS")
		return nil
	}
	fmt.Println("\nFAIL")
	return errVerificationFailed
}

func execVerifyOversold(activityID int64, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 50
	}
	return withVerifier(activityID, func(ctx context.Context, v *verify.Verifier, id int64) (any, bool, error) {
		verdict, err := v.CheckOversold(ctx, id, verify.OversoldOptions{
			Concurrency: concurrency,
			TotalUsers:  concurrency * 2,
			Deadline:    verifyDeadline,
		})
		if err != nil {
			return nil, false, err
		}
		return verdict, verdict.Consistent && !verdict.ActivityOversold, nil
	})
}

func execVerifyDuplicate(activityID int64) error {
	return withVerifier(activityID, func(ctx context.Context, v *verify.Verifier, id int64) (any, bool, error) {
		verdict, err := v.CheckDuplicateSingle(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return verdict, verdict.Blocked, nil
	})
}

func execVerifyDuplicateMulti(activityID int64, users, attempts int) error {
	return withVerifier(activityID, func(ctx context.Context, v *verify.Verifier, id int64) (any, bool, error) {
		verdict, err := v.CheckDuplicateMulti(ctx, id, users, attempts)
		if err != nil {
			return nil, false, err
		}
		return verdict, verdict.Passed, nil
	})
}

func execVerifyIdempotent(activityID int64) error {
	return withVerifier(activityID, func(ctx context.Context, v *verify.Verifier, id int64) (any, bool, error) {
		verdict, err := v.CheckIdempotencySingle(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return verdict, verdict.Passed, nil
	})
}

func execVerifyIdempotentConcurrent(activityID int64, users, requests int) error {
	if users <= 0 {
		users = 50
	}
	if requests <= 0 {
		requests = 500
	}
	return withVerifier(activityID, func(ctx context.Context, v *verify.Verifier, id int64) (any, bool, error) {
		verdict, err := v.CheckIdempotencyConcurrent(ctx, id, users, requests)
		if err != nil {
			return nil, false, err
		}
		return verdict, verdict.Passed, nil
	})
}
