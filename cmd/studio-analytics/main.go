package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrudoy/studio-analytics-sub004/cmd/studio-analytics/commands"
	"github.com/mrudoy/studio-analytics-sub004/logger"
)

var rootCmd = &cobra.Command{
	Use:   "studio-analytics",
	Short: "Studio Analytics - report pipeline orchestrator",
	Long: `Studio Analytics collects business reports from the studio's SaaS
admin panel and republishes them to the shared spreadsheet.

Available commands:
  serve    - Start the orchestrator (worker, scheduler, HTTP API)
  run      - Trigger a pipeline run
  jobs     - Inspect pipeline jobs
  reset    - Clear all queued and running jobs
  schedule - Show or change the cron schedule
  version  - Show version information

Examples:
  studio-analytics serve                  # Run the orchestrator
  studio-analytics run                    # Trigger a run now
  studio-analytics jobs ls --state failed # List failed runs
  studio-analytics schedule enable        # Turn the cron schedule on`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.ResetCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
