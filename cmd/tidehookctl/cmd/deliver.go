package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidehook/tidehook/internal/webhook"
)

// deliverCmd fires a single delivery attempt for a fresh event.
var deliverCmd = &cobra.Command{
	Use:   "deliver [subscriber-id]",
	Short: "Fire a single webhook delivery",
	Long: `Fire a single delivery attempt for a fresh event to one subscriber.

The command is synchronous with respect to the one network attempt; if the
attempt fails transiently, the retry sweep picks it up later.

Example:
  tidehookctl deliver sub_123 --tenant acme --type invoice.created --data '{"invoice_id":"inv_42"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subscriberID := args[0]
		tenantID, _ := cmd.Flags().GetString("tenant")
		eventType, _ := cmd.Flags().GetString("type")
		eventID, _ := cmd.Flags().GetString("event-id")
		dataStr, _ := cmd.Flags().GetString("data")

		if tenantID == "" || eventType == "" {
			return fmt.Errorf("--tenant and --type are required")
		}

		data, err := parseData(dataStr)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		pool, subs, _, dispatcher, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		sub, err := subs.Get(ctx, subscriberID, tenantID)
		if err != nil {
			return fmt.Errorf("subscriber lookup: %w", err)
		}

		d, err := dispatcher.Deliver(ctx, *sub, webhook.Event{
			EventID:   eventID,
			EventType: eventType,
			Data:      data,
			TenantID:  tenantID,
		})
		if err != nil {
			return err
		}
		printDelivery(d)
		return nil
	},
}

func init() {
	deliverCmd.Flags().String("tenant", "", "tenant id (required)")
	deliverCmd.Flags().String("type", "", "event type, e.g. invoice.created (required)")
	deliverCmd.Flags().String("event-id", "", "event id (generated when omitted)")
	deliverCmd.Flags().String("data", "", "event payload as a JSON object")
	rootCmd.AddCommand(deliverCmd)
}
