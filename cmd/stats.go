package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime statistics",
	Long: `Query the tsgate daemon for runtime statistics.

Shows: pipeline packet counters and per-plugin counters such as injection
queue depth, session state and reconnect counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runStats(ctx context.Context, client ControlClient, w io.Writer) error {
	stats, err := client.PipelineStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}

	resultJSON, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}

	fmt.Fprintln(w, string(resultJSON))
	return nil
}
