package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Checksum computes the CRC-32 (IEEE) of the big-endian sequence bit
// followed by the payload. The checksum field itself is not covered.
func Checksum(bit Bit, payload []byte) uint64 {
	var seq [4]byte
	binary.BigEndian.PutUint32(seq[:], uint32(bit))

	h := crc32.NewIEEE()
	h.Write(seq[:])
	h.Write(payload)
	return uint64(h.Sum32())
}

// EncodeData serializes a DataPacket:
// Checksum(8) | SeqBit(4) | Payload.
func EncodeData(pkt *DataPacket) []byte {
	buf := make([]byte, HeaderSize+len(pkt.Payload))
	putHeader(buf, pkt.Checksum, pkt.SeqBit)
	copy(buf[HeaderSize:], pkt.Payload)
	return buf
}

// EncodeAck serializes an AckPacket: Checksum(8) | SeqBit(4).
func EncodeAck(pkt *AckPacket) []byte {
	buf := make([]byte, HeaderSize)
	putHeader(buf, pkt.Checksum, pkt.SeqBit)
	return buf
}

// DecodeData deserializes a DataPacket. The payload is copied, so data may
// be reused by the caller. The checksum is not verified here.
func DecodeData(data []byte) (*DataPacket, error) {
	if err := checkSize(data); err != nil {
		return nil, err
	}
	pkt := &DataPacket{
		Checksum: binary.BigEndian.Uint64(data[0:8]),
		SeqBit:   Bit(int32(binary.BigEndian.Uint32(data[8:12]))),
	}
	pkt.Payload = make([]byte, len(data)-HeaderSize)
	copy(pkt.Payload, data[HeaderSize:])
	return pkt, nil
}

// DecodeAck deserializes an AckPacket. Bytes past the header are ignored.
func DecodeAck(data []byte) (*AckPacket, error) {
	if err := checkSize(data); err != nil {
		return nil, err
	}
	return &AckPacket{
		Checksum: binary.BigEndian.Uint64(data[0:8]),
		SeqBit:   Bit(int32(binary.BigEndian.Uint32(data[8:12]))),
	}, nil
}

func putHeader(buf []byte, checksum uint64, bit Bit) {
	binary.BigEndian.PutUint64(buf[0:8], checksum)
	binary.BigEndian.PutUint32(buf[8:12], uint32(bit))
}

func checkSize(data []byte) error {
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrOversized, len(data), MaxPacketSize)
	}
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes (need at least %d)", ErrShortPacket, len(data), HeaderSize)
	}
	return nil
}
