package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// subscriberCmd groups subscriber lifecycle operations.
var subscriberCmd = &cobra.Command{
	Use:   "subscriber",
	Short: "Subscriber lifecycle operations",
	Long:  `Inspect and deactivate subscribers. Subscriber CRUD lives in the catalog service, not here.`,
}

var subscriberShowCmd = &cobra.Command{
	Use:   "show [subscriber-id]",
	Short: "Show a subscriber",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		if tenantID == "" {
			return fmt.Errorf("--tenant is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, subs, _, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		sub, err := subs.Get(ctx, args[0], tenantID)
		if err != nil {
			return err
		}
		sub.Secret = "(redacted)"
		if outputJSON {
			b, _ := json.MarshalIndent(sub, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		fmt.Printf("Subscriber: %s\n", sub.ID)
		fmt.Printf("Tenant:     %s\n", sub.TenantID)
		fmt.Printf("URL:        %s\n", sub.URL)
		fmt.Printf("Active:     %t\n", sub.IsActive)
		fmt.Printf("Retries:    enabled=%t max=%d timeout=%s\n", sub.RetryEnabled, sub.MaxRetries, sub.Timeout)
		return nil
	},
}

var subscriberDeactivateCmd = &cobra.Command{
	Use:   "deactivate [subscriber-id]",
	Short: "Deactivate a subscriber",
	Long: `Deactivate a subscriber so no further deliveries, manual or swept, are
attempted for it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, subs, _, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := subs.Deactivate(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("subscriber %s deactivated\n", args[0])
		return nil
	},
}

func init() {
	subscriberShowCmd.Flags().String("tenant", "", "tenant id (required)")
	subscriberCmd.AddCommand(subscriberShowCmd)
	subscriberCmd.AddCommand(subscriberDeactivateCmd)
	rootCmd.AddCommand(subscriberCmd)
}
