package rdt

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/advaypal/CS2105/internal/protocol"
	"github.com/advaypal/CS2105/internal/util"
)

// ReceiverStats counts the datagrams handled by a Receiver.
type ReceiverStats struct {
	Delivered  int // new payloads handed to the caller
	Duplicates int // valid retransmissions of the last accepted packet
	Corrupt    int // datagrams that failed validation
}

// Receiver is the receiving side of the alternating-bit protocol. It serves
// a single sender and is not safe for concurrent use.
type Receiver struct {
	conn net.PacketConn

	// lastBit is the sequence bit of the last delivered packet. Every ACK
	// carries it, whatever the datagram being answered.
	lastBit protocol.Bit
	stats   ReceiverStats
	buf     []byte
}

// NewReceiver wraps an already bound socket.
func NewReceiver(conn net.PacketConn) *Receiver {
	return &Receiver{
		conn:    conn,
		lastBit: protocol.Bit1,
		buf:     make([]byte, protocol.MaxPacketSize+1),
	}
}

// Listen binds a UDP socket on host:port and returns a Receiver on it.
func Listen(host string, port int) (*Receiver, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", host, port, err)
	}
	return NewReceiver(conn), nil
}

// Addr returns the local address the receiver is bound to.
func (r *Receiver) Addr() net.Addr { return r.conn.LocalAddr() }

// Stats returns a copy of the receiver's counters.
func (r *Receiver) Stats() ReceiverStats { return r.stats }

// Close closes the underlying socket.
func (r *Receiver) Close() error { return r.conn.Close() }

// ReceiveOne blocks for one datagram, acknowledges it and reports whether
// it carried a new payload. Corrupt packets and duplicates are answered
// with an ACK of the last delivered bit and are not returned.
//
// A new payload is returned even when its ACK could not be sent, together
// with the error, since the receiver has already moved past it.
func (r *Receiver) ReceiveOne() ([]byte, bool, error) {
	n, from, err := r.conn.ReadFrom(r.buf)
	if err != nil {
		return nil, false, err
	}
	if n > protocol.MaxPacketSize {
		return nil, false, fmt.Errorf("%w: %d bytes from %s", protocol.ErrOversized, n, from)
	}

	var payload []byte
	pkt, err := protocol.DecodeData(r.buf[:n])
	switch {
	case err != nil || !pkt.Valid():
		r.stats.Corrupt++
		util.LogDebug("corrupt packet from %s (%d bytes), re-acking bit %d", from, n, r.lastBit)

	case pkt.SeqBit == r.lastBit:
		r.stats.Duplicates++
		util.LogDebug("duplicate packet with bit %d from %s", pkt.SeqBit, from)

	default:
		r.lastBit = pkt.SeqBit
		r.stats.Delivered++
		payload = pkt.Payload
	}

	ack := protocol.EncodeAck(protocol.NewAckPacket(r.lastBit))
	if _, err := r.conn.WriteTo(ack, from); err != nil {
		return payload, payload != nil, fmt.Errorf("failed to send ACK to %s: %w", from, err)
	}

	return payload, payload != nil, nil
}

// Serve receives until ctx is cancelled, calling deliver once for every
// new payload. It closes the socket on return.
func (r *Receiver) Serve(ctx context.Context, deliver func([]byte)) error {
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()
	defer r.conn.Close()

	for {
		payload, ok, err := r.ReceiveOne()
		if ok {
			deliver(payload)
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
