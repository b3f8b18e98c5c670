package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"skbench/internal/banner"
	"skbench/internal/client"
	"skbench/internal/logging"
	"skbench/internal/menu"
	"skbench/internal/userpool"
)

var (
	cfgFile string

	baseURL    string
	logFile    string
	verbose    bool
	reportsDir string
	historyDB  string
)

var rootCmd = &cobra.Command{
	Use:   "skbench",
	Short: "skbench - flash-sale load and correctness harness",
	Long: `
skbench drives load against a seckill (flash-sale) order service and
audits its correctness: oversold stock, duplicate purchases and
idempotency under concurrency.

Run without a subcommand for the interactive menu, or use subcommands
for headless/CI usage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu()
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.skbench.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8080", "seckill service address")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", logging.DefaultLogFile, "append JSON logs to this file (empty disables)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&reportsDir, "reports", "test_reports", "directory for per-run report output")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "run history database (default is $HOME/.skbench/history.db)")

	viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("reports", rootCmd.PersistentFlags().Lookup("reports"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".skbench")
		}
	}
	viper.SetEnvPrefix("skbench")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		baseURL = viper.GetString("base_url")
		logFile = viper.GetString("log_file")
		reportsDir = viper.GetString("reports")
	}
}

// harness bundles the pieces every subcommand needs.
type harness struct {
	log    *zap.Logger
	client *client.Client
	pool   *userpool.Pool
}

func newHarness() (*harness, error) {
	log, err := logging.New(logFile, verbose)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	c := client.New(baseURL, log)
	return &harness{
		log:    log,
		client: c,
		pool:   userpool.New(c, log),
	}, nil
}

func (h *harness) close() {
	h.log.Sync()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ensureActivity resolves the target activity: a non-zero id is used
// as-is, otherwise a fresh activity is created with the given stock.
func ensureActivity(ctx context.Context, h *harness, activityID, stock int64) (int64, error) {
	if activityID != 0 {
		return activityID, nil
	}
	name := fmt.Sprintf("bench-%d", os.Getpid())
	id, err := h.client.CreateActivity(ctx, name, 1, 99.9, stock)
	if err != nil {
		return 0, fmt.Errorf("create activity: %w", err)
	}
	return id, nil
}

// runMenu shows the interactive menu and dispatches the selection onto
// the same code paths the headless subcommands use.
func runMenu() error {
	fmt.Println(banner.GetString())
	sel, err := menu.Run()
	if err != nil {
		return err
	}

	switch sel.Action {
	case menu.ActionNone, menu.ActionQuit:
		return nil
	case menu.ActionRun:
		if sel.Custom != nil {
			return execRun(*sel.Custom)
		}
		return execRunPreset(sel.Profile)
	case menu.ActionOversold:
		return execVerifyOversold(0, sel.Concurrency)
	case menu.ActionDuplicateSingle:
		return execVerifyDuplicate(0)
	case menu.ActionDuplicateMulti:
		return execVerifyDuplicateMulti(0, 50, 2)
	case menu.ActionIdempotencySingle:
		return execVerifyIdempotent(0)
	case menu.ActionIdempotencyConcurrent:
		return execVerifyIdempotentConcurrent(0, 50, sel.Concurrency*10)
	case menu.ActionRegister:
		return execRegister(sel.Count, "test_user")
	case menu.ActionCreateActivity:
		return execActivityCreate("benchmark activity", 1, 99.9, sel.Stock)
	case menu.ActionListActivities:
		return execActivityList()
	case menu.ActionHistory:
		return execHistory()
	}
	return nil
}
