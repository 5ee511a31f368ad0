package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// retryCmd manually re-attempts a specific delivery.
var retryCmd = &cobra.Command{
	Use:   "retry [delivery-id]",
	Short: "Manually retry a delivery",
	Long: `Manually re-attempt a specific delivery by id.

The retry is refused when the delivery does not exist, already succeeded,
or its subscriber has been deactivated.

Example:
  tidehookctl retry dlv_123 --tenant acme`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deliveryID := args[0]
		tenantID, _ := cmd.Flags().GetString("tenant")
		if tenantID == "" {
			return fmt.Errorf("--tenant is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, _, deliveries, dispatcher, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		ok, err := dispatcher.RetryDelivery(ctx, deliveryID, tenantID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("retry refused: delivery missing, terminal, or subscriber inactive")
		}

		d, err := deliveries.Get(ctx, deliveryID, tenantID)
		if err != nil {
			return err
		}
		printDelivery(d)
		return nil
	},
}

func init() {
	retryCmd.Flags().String("tenant", "", "tenant id (required)")
	rootCmd.AddCommand(retryCmd)
}
