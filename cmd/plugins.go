package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/tsgate/pkg/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List built-in plugins",
	Run: func(cmd *cobra.Command, args []string) {
		runPlugins(cmd.OutOrStdout())
	},
}

func runPlugins(w io.Writer) {
	fmt.Fprintf(w, "inputs:     %s\n", strings.Join(plugin.ListInputs(), ", "))
	fmt.Fprintf(w, "processors: %s\n", strings.Join(plugin.ListProcessors(), ", "))
	fmt.Fprintf(w, "outputs:    %s\n", strings.Join(plugin.ListOutputs(), ", "))
}
