package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the tsgate daemon for its overall status.

Shows: version, run id, uptime and the pipeline state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client ControlClient, w io.Writer) error {
	status, err := client.DaemonStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query daemon status: %w", err)
	}

	fmt.Fprintf(w, "Version:   %s\n", status.Version)
	fmt.Fprintf(w, "Run ID:    %s\n", status.RunID)
	fmt.Fprintf(w, "PID:       %d\n", status.PID)
	fmt.Fprintf(w, "Uptime:    %s\n", time.Duration(status.UptimeSec)*time.Second)
	fmt.Fprintf(w, "Pipeline:  %s (%s)\n", status.PipelineID, status.State)
	fmt.Fprintf(w, "Real-time: %t\n", status.RealTime)
	return nil
}
