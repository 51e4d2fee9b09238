package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tsgate/internal/config"
	"firestige.xyz/tsgate/internal/pipeline"
)

var validatePrint bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the daemon.

The pipeline is assembled and every plugin initialized with its options,
but no socket is bound and no session is opened.

Examples:
  tsgate validate -c /etc/tsgate/config.yml
  tsgate validate -c config.yml --print`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, validatePrint, cmd.OutOrStdout())
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validatePrint, "print", false,
		"print the effective configuration as YAML")
}

func runValidate(path string, print bool, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := pipeline.Build(cfg.Pipeline, quiet); err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(w, "VALID: pipeline %q: %s -> %d processor(s) -> %s\n",
		cfg.Pipeline.ID,
		cfg.Pipeline.Input.Type,
		len(cfg.Pipeline.Processors),
		cfg.Pipeline.Output.Type,
	)

	if print {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"tsgate": cfg}); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	}
	return nil
}
