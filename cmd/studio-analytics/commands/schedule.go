package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrudoy/studio-analytics-sub004/scheduler"
)

// ScheduleCmd groups schedule management commands
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the cron schedule",
	Long: `Manage the cron schedule for automatic pipeline runs.

The schedule is stored in the database, so changes made here are picked up
by a running serve process on its next sync.

Examples:
  studio-analytics schedule show
  studio-analytics schedule set "0 6,18 * * *" --timezone America/New_York
  studio-analytics schedule enable
  studio-analytics schedule disable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		cfg, err := scheduler.NewConfigStore(conn).Get(context.Background())
		if err != nil {
			return err
		}

		state := "disabled"
		if cfg.Enabled {
			state = "enabled"
		}
		fmt.Printf("Schedule: %s\n", state)
		fmt.Printf("Pattern:  %s\n", cfg.CronPattern)
		fmt.Printf("Timezone: %s\n", cfg.Timezone)
		return nil
	},
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set <cron-pattern>",
	Short: "Set the cron pattern (and optionally the timezone)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateSchedule(func(cfg *scheduler.ScheduleConfig) {
			cfg.CronPattern = args[0]
			if tz, _ := cmd.Flags().GetString("timezone"); tz != "" {
				cfg.Timezone = tz
			}
		})
	},
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable scheduled runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateSchedule(func(cfg *scheduler.ScheduleConfig) {
			cfg.Enabled = true
		})
	},
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable scheduled runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateSchedule(func(cfg *scheduler.ScheduleConfig) {
			cfg.Enabled = false
		})
	},
}

// updateSchedule applies a mutation to the saved schedule with validation
func updateSchedule(mutate func(*scheduler.ScheduleConfig)) error {
	conn, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	store := scheduler.NewConfigStore(conn)

	cfg, err := store.Get(ctx)
	if err != nil {
		return err
	}
	mutate(cfg)

	// Validation lives in the scheduler; Sync here only installs a cron in
	// this short-lived process, the serve process re-syncs on its own.
	sched := scheduler.New(store, nil)
	if err := sched.UpdateConfig(ctx, cfg); err != nil {
		return err
	}
	sched.Stop()

	state := "disabled"
	if cfg.Enabled {
		state = "enabled"
	}
	fmt.Printf("Schedule %s: %s (%s)\n", state, cfg.CronPattern, cfg.Timezone)
	return nil
}

func init() {
	scheduleSetCmd.Flags().String("timezone", "", "IANA timezone for the schedule")

	ScheduleCmd.AddCommand(scheduleShowCmd)
	ScheduleCmd.AddCommand(scheduleSetCmd)
	ScheduleCmd.AddCommand(scheduleEnableCmd)
	ScheduleCmd.AddCommand(scheduleDisableCmd)
}
