package cmd

import (
	"fmt"

	"backup-expiry/internal/application"

	"github.com/spf13/cobra"
)

// scheduleCmd runs expiry as a long running process
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run expiry on the configured cron schedule",
	Long: `Run as a long running process that starts a scheduled expiry run on every
tick of schedule.cron (default "30 3 * * *"). Each run cleans the classes due
that day, exactly like running backup-expiry without a subcommand.

--timeout limits each run instead of the process and overrides
schedule.run_timeout. With metrics.enabled the Prometheus metrics are served
on metrics.listen. The process stops on SIGINT or SIGTERM.

Examples:
  # Run with the configured schedule
  backup-expiry schedule --config=/etc/backup-expiry/backup-expiry.yaml

  # Limit every run to 30 minutes
  backup-expiry schedule --timeout=30m`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

// runSchedule executes the schedule command
func runSchedule(cmd *cobra.Command, args []string) error {
	options, err := buildOptions(cmd)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	cmd.SilenceUsage = true

	runTimeout := options.Timeout
	options.Timeout = 0

	app, err := application.NewApplication(*options)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	if runTimeout > 0 {
		app.GetConfig().Schedule.RunTimeout = runTimeout
	}

	return app.Execute(app.Schedule)
}
