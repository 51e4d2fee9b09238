// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/tsgate/internal/daemon"
	_ "firestige.xyz/tsgate/plugins" // register built-in plugins
)

const defaultSocket = "/var/run/tsgate.sock"

var (
	// Global flags
	configFile    string
	socketPath    string
	clientTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tsgate",
	Short: "tsgate - MPEG transport stream relay with UDP packet injection",
	Long: `tsgate relays an MPEG transport stream to a remote receiver over an
outbound session and fills stuffing packets with packets injected over UDP.

Features:
  - Plugin pipeline: one input, a processor chain and one output
  - Supervised sessions: reconnect after receiver drops (TCP, UDP, QUIC, WebSocket)
  - UDP injection into PID 0x1FFF slots with a bounded queue
  - Local control: CLI via Unix Domain Socket
  - Prometheus metrics`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/tsgate/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", defaultSocket,
		"daemon socket path")
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 10*time.Second,
		"control request timeout")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(pluginsCmd)
}
