package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mrudoy/studio-analytics-sub004/internal/version"
)

// VersionCmd prints build information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("studio-analytics %s\n", version.String())
		fmt.Printf("Go: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
