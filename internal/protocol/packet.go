// Package protocol defines the alternating-bit packet format shared by the
// sender and the receiver.
package protocol

import "errors"

// Size limits. A packet on the wire is never larger than MaxPacketSize.
const (
	MaxPacketSize  = 1024
	HeaderSize     = 12 // Checksum(8) + SeqBit(4)
	MaxPayloadSize = MaxPacketSize - HeaderSize
)

var (
	ErrShortPacket     = errors.New("packet shorter than header")
	ErrOversized       = errors.New("packet exceeds maximum size")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)

// Bit is the 1-bit sequence number of the alternating-bit protocol.
type Bit int32

const (
	Bit0 Bit = 0
	Bit1 Bit = 1
)

// Flip returns the opposite bit.
func (b Bit) Flip() Bit {
	if b == Bit0 {
		return Bit1
	}
	return Bit0
}

// Valid reports whether b is 0 or 1.
func (b Bit) Valid() bool {
	return b == Bit0 || b == Bit1
}

// DataPacket carries one message from the sender to the receiver.
type DataPacket struct {
	Checksum uint64 // CRC-32 over SeqBit and Payload
	SeqBit   Bit
	Payload  []byte
}

// AckPacket acknowledges the last data packet the receiver accepted.
type AckPacket struct {
	Checksum uint64 // CRC-32 over SeqBit
	SeqBit   Bit
}

// NewDataPacket builds a checksummed data packet.
func NewDataPacket(bit Bit, payload []byte) (*DataPacket, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	return &DataPacket{
		Checksum: Checksum(bit, payload),
		SeqBit:   bit,
		Payload:  payload,
	}, nil
}

// NewAckPacket builds a checksummed ACK.
func NewAckPacket(bit Bit) *AckPacket {
	return &AckPacket{
		Checksum: Checksum(bit, nil),
		SeqBit:   bit,
	}
}

// Valid recomputes the checksum and checks the sequence bit domain.
func (p *DataPacket) Valid() bool {
	return p.SeqBit.Valid() && p.Checksum == Checksum(p.SeqBit, p.Payload)
}

// Valid recomputes the checksum and checks the sequence bit domain.
func (p *AckPacket) Valid() bool {
	return p.SeqBit.Valid() && p.Checksum == Checksum(p.SeqBit, nil)
}
