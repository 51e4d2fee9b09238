package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/tsgate/internal/daemon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tsgate daemon in foreground",
	Long: `Run the tsgate daemon process in foreground.

The daemon will:
  1. Load configuration from the config file
  2. Initialize logging and metrics
  3. Build and start the packet pipeline
  4. Start the UDS server for CLI control
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)

The daemon exits when the pipeline ends, for example when a pcap input
reaches end of file or the output session terminates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The socket flag only overrides control.socket when given.
		override := ""
		if cmd.Flags().Changed("socket") {
			override = socketPath
		}
		return runDaemon(configFile, override)
	},
}

func runDaemon(configPath, socketOverride string) error {
	d, err := daemon.New(configPath, socketOverride)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
