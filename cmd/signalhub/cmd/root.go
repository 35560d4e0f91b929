package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "signalhub",
	Short: "Signaling relay for ephemeral video-chat rooms",
	Long: `signalhub relays signaling and chat control messages between the
participants of ephemeral video-chat rooms, and keeps track of room and
client liveness.

Use "signalhub [command] --help" for more information about a command.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
