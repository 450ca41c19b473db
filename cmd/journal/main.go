// journal tracks trading positions, watches their stops and profit targets,
// and compares closed trades against alternative exit strategies.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal and position monitor",
		Long: `journal consumes brokerage fills, keeps positions with their risk basis,
raises stop, profit target and pattern alerts during market hours, and
replays closed trades against alternative exit strategies.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(nextRunCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("journal version %s\n", version)
		},
	}
}
