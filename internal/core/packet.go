// Package core defines core data structures with zero external dependencies.
package core

import "fmt"

const (
	// PacketSize is the size of one MPEG transport stream packet.
	PacketSize = 188

	// SyncByte starts every transport stream packet.
	SyncByte = 0x47

	// PIDNull is the reserved stuffing PID. Packets on it carry no payload
	// of interest and may be replaced downstream.
	PIDNull uint16 = 0x1FFF

	// PIDMax is the largest valid 13-bit PID.
	PIDMax uint16 = 0x1FFF
)

// Packet is one fixed-size transport stream packet. It is a value type:
// stages copy packets instead of sharing them.
type Packet [PacketSize]byte

// DecodePacket copies b into a Packet. b must be exactly PacketSize bytes.
func DecodePacket(b []byte) (Packet, error) {
	var pkt Packet
	if len(b) != PacketSize {
		return pkt, fmt.Errorf("%w: got %d bytes, want %d", ErrPacketSize, len(b), PacketSize)
	}
	copy(pkt[:], b)
	return pkt, nil
}

// NullPacket returns a stuffing packet: PID 0x1FFF, payload only, 0xFF fill.
func NullPacket() Packet {
	var pkt Packet
	for i := range pkt {
		pkt[i] = 0xFF
	}
	pkt[0] = SyncByte
	pkt[1] = 0x1F
	pkt[2] = 0xFF
	pkt[3] = 0x10
	return pkt
}

// PID returns the 13-bit packet identifier.
func (p *Packet) PID() uint16 {
	return uint16(p[1]&0x1F)<<8 | uint16(p[2])
}

// SetPID overwrites the packet identifier, keeping the TEI/PUSI/priority bits.
func (p *Packet) SetPID(pid uint16) {
	pid &= PIDMax
	p[1] = p[1]&0xE0 | byte(pid>>8)
	p[2] = byte(pid)
}

// IsNull reports whether the packet is a stuffing packet.
func (p *Packet) IsNull() bool {
	return p.PID() == PIDNull
}

// HasSync reports whether the packet starts with the sync byte.
func (p *Packet) HasSync() bool {
	return p[0] == SyncByte
}

// ContinuityCounter returns the 4-bit continuity counter.
func (p *Packet) ContinuityCounter() uint8 {
	return p[3] & 0x0F
}

// PayloadUnitStart reports the payload_unit_start_indicator bit.
func (p *Packet) PayloadUnitStart() bool {
	return p[1]&0x40 != 0
}

// Bytes returns the packet as a slice backed by p.
func (p *Packet) Bytes() []byte {
	return p[:]
}
