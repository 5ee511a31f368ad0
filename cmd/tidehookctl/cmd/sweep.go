package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// sweepCmd runs a single retry sweep pass.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retry sweep pass",
	Long: `Select due retries across all tenants and re-attempt them, up to the
batch limit. This is the same pass the worker runs on its interval.

Example:
  tidehookctl sweep --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, _, _, dispatcher, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := dispatcher.ProcessPendingRetries(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Printf("processed %d due deliveries\n", n)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Int("limit", 100, "maximum deliveries to process")
	rootCmd.AddCommand(sweepCmd)
}
