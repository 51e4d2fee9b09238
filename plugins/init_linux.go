//go:build linux && cgo

package plugins

import (
	"firestige.xyz/tsgate/pkg/plugin"
	"firestige.xyz/tsgate/plugins/input/afpacket"
)

func init() {
	plugin.RegisterInput("afpacket", afpacket.NewAFPacketInput)
}
