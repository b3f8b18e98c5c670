package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"skbench/internal/userpool"
)

var (
	actName    string
	actProduct int64
	actPrice   float64
	actStock   int64

	registerCount  int
	registerPrefix string
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Manage flash-sale activities on the target service",
}

var activityCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an activity and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execActivityCreate(actName, actProduct, actPrice, actStock)
	},
}

func execActivityCreate(name string, product int64, price float64, stock int64) error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.close()

	ctx, cancel := signalContext()
	defer cancel()

	id, err := h.client.CreateActivity(ctx, name, product, price, stock)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

var activityGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one activity as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad activity id %q", args[0])
		}

		h, err := newHarness()
		if err != nil {
			return err
		}
		defer h.close()

		ctx, cancel := signalContext()
		defer cancel()

		act, err := h.client.GetActivity(ctx, id)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(act, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var activityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all activities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execActivityList()
	},
}

func execActivityList() error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.close()

	ctx, cancel := signalContext()
	defer cancel()

	acts, err := h.client.ListActivities(ctx)
	if err != nil {
		return err
	}
	if len(acts) == 0 {
		fmt.Println("no activities")
		return nil
	}
	for _, act := range acts {
		fmt.Printf("%-6d %-24s stock %d/%d  price %.2f\n",
			act.ID, act.Name, act.AvailableStock, act.TotalStock, act.SeckillPrice)
	}
	return nil
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a batch of test users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execRegister(registerCount, registerPrefix)
	},
}

func execRegister(count int, prefix string) error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.close()

	ctx, cancel := signalContext()
	defer cancel()

	got := h.pool.RegisterBatch(ctx, count, prefix)
	fmt.Printf("registered %d/%d users\n", got, count)
	for _, ident := range h.pool.Identities() {
		printIdentity(ident)
	}
	return nil
}

func printIdentity(ident userpool.Identity) {
	fmt.Printf("  %-8d %s\n", ident.ID, ident.Username)
}

func init() {
	rootCmd.AddCommand(activityCmd, registerCmd)
	activityCmd.AddCommand(activityCreateCmd, activityGetCmd, activityListCmd)

	activityCreateCmd.Flags().StringVar(&actName, "name", "benchmark activity", "activity name")
	activityCreateCmd.Flags().Int64Var(&actProduct, "product", 1, "product id")
	activityCreateCmd.Flags().Float64Var(&actPrice, "price", 99.9, "seckill price")
	activityCreateCmd.Flags().Int64Var(&actStock, "stock", 1000, "total stock")

	registerCmd.Flags().IntVarP(&registerCount, "count", "n", 10, "users to register")
	registerCmd.Flags().StringVar(&registerPrefix, "prefix", "test_user", "username prefix")
}
