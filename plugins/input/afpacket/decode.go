package afpacket

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// frameDecoder extracts UDP payloads from Ethernet frames. It reuses its
// layers between calls and is not safe for concurrent use.
type frameDecoder struct {
	parser  *gopacket.DecodingLayerParser
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	udp     layers.UDP
	payload gopacket.Payload
	decoded []gopacket.LayerType
}

func newFrameDecoder() *frameDecoder {
	d := &frameDecoder{decoded: make([]gopacket.LayerType, 0, 8)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.eth, &d.dot1q, &d.ip4, &d.udp, &d.payload)
	d.parser.IgnoreUnsupported = true
	return d
}

// udpPayload returns the payload of a UDP datagram sent to dstPort. The
// returned slice aliases frame.
func (d *frameDecoder) udpPayload(frame []byte, dstPort uint16) ([]byte, bool) {
	if err := d.parser.DecodeLayers(frame, &d.decoded); err != nil {
		return nil, false
	}
	for _, lt := range d.decoded {
		if lt == layers.LayerTypeUDP {
			if uint16(d.udp.DstPort) != dstPort {
				return nil, false
			}
			return d.udp.Payload, true
		}
	}
	return nil, false
}
