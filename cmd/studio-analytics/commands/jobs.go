package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrudoy/studio-analytics-sub004/queue"
)

// JobsCmd groups job inspection commands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect pipeline jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// jobsLsCmd lists jobs by state
var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List pipeline jobs",
	Long: `List pipeline jobs, optionally filtered by state.

States: waiting, active, delayed, completed, failed

Examples:
  studio-analytics jobs ls
  studio-analytics jobs ls --state failed --limit 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		stateFlag, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")

		store := queue.NewStore(conn)
		ctx := context.Background()

		states := []queue.State{queue.StateWaiting, queue.StateActive, queue.StateDelayed, queue.StateCompleted, queue.StateFailed}
		if stateFlag != "" {
			states = []queue.State{queue.State(stateFlag)}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tTRIGGERED BY\tATTEMPTS\tENQUEUED\tDETAIL")
		total := 0
		for _, state := range states {
			jobs, err := store.ListJobsByState(ctx, state, limit)
			if err != nil {
				return err
			}
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					job.ID,
					job.State,
					job.Payload.TriggeredBy,
					job.Attempts,
					job.EnqueuedAt.Format(time.RFC3339),
					jobDetail(job))
				total++
			}
		}
		w.Flush()

		if total == 0 {
			fmt.Println("No jobs found")
		}
		return nil
	},
}

// jobsShowCmd prints one job as JSON
var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show full details of one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		job, err := queue.NewStore(conn).GetJob(context.Background(), args[0])
		if err != nil {
			return err
		}

		output, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	},
}

// jobDetail summarizes a job's progress or outcome for the list view
func jobDetail(job *queue.Job) string {
	switch job.State {
	case queue.StateActive:
		return fmt.Sprintf("%s (%d%%)", job.Progress.Step, job.Progress.Percent)
	case queue.StateDelayed:
		if job.WakeAt != nil {
			return "retry at " + job.WakeAt.Format(time.Kitchen)
		}
		return "retry pending"
	case queue.StateFailed:
		return job.FailureReason
	case queue.StateCompleted:
		if job.Result != nil {
			return fmt.Sprintf("%d warnings", len(job.Result.Warnings))
		}
	}
	return ""
}

func init() {
	jobsLsCmd.Flags().String("state", "", "Filter by job state")
	jobsLsCmd.Flags().Int("limit", 20, "Maximum jobs per state")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
}
