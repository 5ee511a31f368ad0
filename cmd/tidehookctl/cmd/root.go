package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tidehook/tidehook/internal/db"
	"github.com/tidehook/tidehook/internal/store/postgres"
	"github.com/tidehook/tidehook/internal/webhook"
)

var (
	cfgFile    string
	dsn        string
	timeout    time.Duration
	outputJSON bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tidehookctl",
	Short: "Tidehook CLI - operate the tidehook webhook delivery service",
	Long: `Tidehook CLI (tidehookctl) is a command line tool for operating the
tidehook webhook delivery service.

You can use it to fire deliveries, retry failed deliveries, run a retry
sweep pass, and deactivate subscribers.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tidehookctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres DSN (default from TIDEHOOK_DSN or config file)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "command timeout")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	// Bind flags to viper
	viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tidehookctl")
	}

	viper.SetEnvPrefix("tidehook")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Override global variables with config values if flags weren't explicitly set
	if !rootCmd.PersistentFlags().Changed("dsn") {
		if s := viper.GetString("dsn"); s != "" {
			dsn = s
		}
	}
	if !rootCmd.PersistentFlags().Changed("timeout") {
		if d := viper.GetDuration("timeout"); d > 0 {
			timeout = d
		}
	}
	if !rootCmd.PersistentFlags().Changed("json") {
		outputJSON = viper.GetBool("json")
	}
}

// connect opens a pool and returns the stores and a dispatcher wired to them.
func connect(ctx context.Context) (*pgxpool.Pool, *postgres.SubscriberStore, *postgres.DeliveryStore, *webhook.Dispatcher, error) {
	if dsn == "" {
		return nil, nil, nil, nil, fmt.Errorf("no DSN configured (use --dsn, TIDEHOOK_DSN, or the config file)")
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("db connect: %w", err)
	}
	subs := postgres.NewSubscriberStore(pool)
	deliveries := postgres.NewDeliveryStore(pool)
	return pool, subs, deliveries, webhook.NewDispatcher(subs, deliveries, nil), nil
}

// parseData decodes an event payload flag into a JSON object. An empty string
// means no payload.
func parseData(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, fmt.Errorf("invalid --data JSON: %w", err)
	}
	return data, nil
}

// printDelivery renders a delivery either as JSON or as a readable summary.
func printDelivery(d *webhook.Delivery) {
	if outputJSON {
		b, _ := json.MarshalIndent(d, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("Delivery:   %s\n", d.ID)
	fmt.Printf("Subscriber: %s\n", d.SubscriberID)
	fmt.Printf("Event:      %s (%s)\n", d.EventID, d.Event.EventType)
	fmt.Printf("Status:     %s (attempt %d)\n", d.Status, d.AttemptNumber)
	if d.ResponseCode != nil {
		fmt.Printf("Response:   %d\n", *d.ResponseCode)
	}
	if d.ErrorMessage != "" {
		fmt.Printf("Error:      %s\n", d.ErrorMessage)
	}
	if d.NextRetryAt != nil {
		fmt.Printf("Next retry: %s\n", d.NextRetryAt.Format(time.RFC3339))
	}
}
