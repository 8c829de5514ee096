// Package commands implements the taskrota CLI commands using cobra.
package commands

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "taskrota",
	Short: "Recurring task assignment for small teams",
	Long: `taskrota turns a catalog of recurring task templates into concrete,
assigned tasks for everyone on the roster.

Run a batch by hand with 'taskrota assign run' or let the daemon run the
daily batch at the configured time.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor || !isInteractive() {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}
