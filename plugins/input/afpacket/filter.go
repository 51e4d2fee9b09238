// Package afpacket implements a live capture input on an AF_PACKET ring.
//
// It taps TS-over-UDP traffic addressed to one destination port on a network
// interface, without binding the port, and emits the transport packets the
// datagrams carry.
package afpacket

import (
	"golang.org/x/net/bpf"
)

const (
	etherTypeIPv4 = 0x0800
	ipProtoUDP    = 17
)

// udpDstPortProgram returns a classic BPF program accepting unfragmented
// IPv4/UDP Ethernet frames sent to port. Accepted frames are truncated to
// snapLen.
func udpDstPortProgram(port uint16, snapLen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		// EtherType
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: etherTypeIPv4, SkipTrue: 8},
		// IP protocol
		bpf.LoadAbsolute{Off: 23, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: ipProtoUDP, SkipTrue: 6},
		// Fragment offset
		bpf.LoadAbsolute{Off: 20, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 4},
		// X = IP header length; UDP destination port sits at 14+X+2
		bpf.LoadMemShift{Off: 14},
		bpf.LoadIndirect{Off: 16, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port), SkipFalse: 1},
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}
}

// compileFilter assembles the port filter for a socket.
func compileFilter(port uint16, snapLen uint32) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(udpDstPortProgram(port, snapLen))
}
