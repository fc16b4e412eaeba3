package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ResetCmd clears every non-terminal job from the queue
var ResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all queued and running jobs",
	Long: `Clear the pipeline queue: running jobs are failed with
"Cleared by user", waiting and delayed jobs are removed. Use this when a
run is stuck and blocking new triggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		result, err := newQueue(conn, cfg).ClearQueue(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Cleared %d job(s)\n", result.Cleared)
		return nil
	},
}
