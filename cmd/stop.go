package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/tsgate/internal/config"
	"firestige.xyz/tsgate/internal/core"
	"firestige.xyz/tsgate/internal/daemon"
)

var stopForce bool

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the tsgate daemon",
	Long: `Stop the tsgate daemon gracefully.

This command sends daemon_shutdown over the Unix Domain Socket. The daemon
stops the pipeline, closes the output session and exits cleanly.

With --force, a daemon whose socket is unreachable is sent SIGTERM using the
PID file named in the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := runStop(cmd.Context(), newClient(), cmd.OutOrStdout())
		if err == nil || !stopForce || !errors.Is(err, core.ErrDaemonNotRunning) {
			return err
		}
		return runForceStop(configFile, cmd.OutOrStdout())
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopForce, "force", false,
		"fall back to SIGTERM via the PID file when the socket is unreachable")
}

func runStop(ctx context.Context, client ControlClient, w io.Writer) error {
	if err := client.DaemonShutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Fprintln(w, "✓ Daemon is shutting down")
	return nil
}

func runForceStop(configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config for PID file: %w", err)
	}
	if err := daemon.SignalStop(cfg.Control.PIDFile, 10*time.Second); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Fprintln(w, "✓ Daemon stopped via SIGTERM")
	return nil
}
