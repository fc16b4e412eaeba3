package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/queue"
)

// RunCmd triggers a pipeline run against the running orchestrator's database
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger a pipeline run",
	Long: `Enqueue a pipeline run. The serve process picks the job up on its
next poll. Fails when another run is already waiting or active.

Examples:
  studio-analytics run
  studio-analytics run --start 2026-08-01 --end 2026-08-15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		if (start == "") != (end == "") {
			return errors.Wrap(errors.ErrInvalidRequest, "--start and --end must be given together")
		}

		q := newQueue(conn, cfg)
		job, err := q.Enqueue(context.Background(), queue.Payload{
			TriggeredBy:    queue.TriggeredByCLI,
			DateRangeStart: start,
			DateRangeEnd:   end,
		})
		if err != nil {
			if errors.IsAlreadyRunning(err) {
				fmt.Printf("Pipeline is busy: %v\n", err)
				return nil
			}
			return err
		}

		fmt.Printf("Enqueued pipeline job %s\n", job.ID)
		return nil
	},
}

func init() {
	RunCmd.Flags().String("start", "", "Report range start (YYYY-MM-DD)")
	RunCmd.Flags().String("end", "", "Report range end (YYYY-MM-DD)")
}
