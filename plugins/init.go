// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/tsgate/pkg/plugin"
	"firestige.xyz/tsgate/plugins/input/null"
	"firestige.xyz/tsgate/plugins/input/pcap"
	"firestige.xyz/tsgate/plugins/input/udp"
	"firestige.xyz/tsgate/plugins/output/console"
	"firestige.xyz/tsgate/plugins/output/session"
	"firestige.xyz/tsgate/plugins/processor/udpinject"
)

func init() {
	// Register input plugins
	plugin.RegisterInput("null", null.NewNullInput)
	plugin.RegisterInput("udp", udp.NewUDPInput)
	plugin.RegisterInput("pcap", pcap.NewPcapInput)

	// Register processor plugins
	plugin.RegisterProcessor("udpinject", udpinject.NewProcessor)

	// Register output plugins
	plugin.RegisterOutput("session", session.NewSessionOutput)
	plugin.RegisterOutput("console", console.NewConsoleOutput)
}
