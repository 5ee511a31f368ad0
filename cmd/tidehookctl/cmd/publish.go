package cmd

import (
	"context"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tidehook/tidehook/internal/db"
	"github.com/tidehook/tidehook/internal/publish"
	"github.com/tidehook/tidehook/internal/webhook"
)

// publishCmd enqueues an event for asynchronous delivery by the workers,
// fanning out to every matching subscriber. Use deliver for a synchronous
// single-subscriber attempt.
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an event for asynchronous delivery",
	Long: `Publish an event to the delivery queue. One task is enqueued per active
subscriber registered for the event type; workers pick the tasks up and run
the delivery pipeline.

Example:
  tidehookctl publish --tenant acme --type invoice.created --data '{"invoice_id":"inv_42"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		eventType, _ := cmd.Flags().GetString("type")
		eventID, _ := cmd.Flags().GetString("event-id")
		dataStr, _ := cmd.Flags().GetString("data")
		nsqdAddr, _ := cmd.Flags().GetString("nsqd")
		topic, _ := cmd.Flags().GetString("topic")

		if tenantID == "" || eventType == "" {
			return fmt.Errorf("--tenant and --type are required")
		}
		if !cmd.Flags().Changed("nsqd") {
			if s := viper.GetString("nsqd"); s != "" {
				nsqdAddr = s
			}
		}

		data, err := parseData(dataStr)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if dsn == "" {
			return fmt.Errorf("no DSN configured (use --dsn, TIDEHOOK_DSN, or the config file)")
		}
		pool, err := db.Connect(ctx, dsn)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		prod, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq producer: %w", err)
		}
		defer prod.Stop()

		publisher := publish.NewPublisher(pool, prod, topic)
		fanout, err := publisher.PublishEvent(ctx, webhook.Event{
			EventID:   eventID,
			EventType: eventType,
			TenantID:  tenantID,
			Data:      data,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Published to %d subscriber(s)\n", fanout)
		return nil
	},
}

func init() {
	publishCmd.Flags().String("tenant", "", "tenant id (required)")
	publishCmd.Flags().String("type", "", "event type, e.g. invoice.created (required)")
	publishCmd.Flags().String("event-id", "", "event id (generated when omitted)")
	publishCmd.Flags().String("data", "", "event payload as a JSON object")
	publishCmd.Flags().String("nsqd", "localhost:4150", "nsqd TCP address")
	publishCmd.Flags().String("topic", "deliveries", "delivery task topic")
	rootCmd.AddCommand(publishCmd)
}
