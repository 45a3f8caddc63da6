// Package rdt implements both ends of a stop-and-wait alternating-bit
// protocol over UDP.
//
// The two ends start in fixed, complementary states: a Sender begins with
// bit 0 and a Receiver treats bit 1 as last accepted, so the first data
// packet ever sent is new to the receiver. Nothing is negotiated at startup.
package rdt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/advaypal/CS2105/internal/config"
	"github.com/advaypal/CS2105/internal/protocol"
	"github.com/advaypal/CS2105/internal/util"
)

// SenderStats counts the work done by a Sender since creation.
type SenderStats struct {
	Sent        int // messages acknowledged
	Retransmits int // extra copies of a data packet put on the wire
	Timeouts    int // waits that ended without any reply
	BadAcks     int // replies that were corrupt or carried the wrong bit
}

// Sender is the sending side of the alternating-bit protocol.
// It is not safe for concurrent use; messages are sent one at a time.
type Sender struct {
	dest    *net.UDPAddr
	timeout time.Duration

	bit   protocol.Bit
	stats SenderStats
}

// SenderOption customizes a Sender.
type SenderOption func(*Sender)

// WithTimeout overrides the retransmission timeout. Non-positive values
// keep the default.
func WithTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSender creates a Sender that delivers messages to dest.
func NewSender(dest *net.UDPAddr, opts ...SenderOption) *Sender {
	s := &Sender{
		dest:    dest,
		timeout: config.DefaultTimeout,
		bit:     protocol.Bit0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bit returns the sequence bit the next message will carry.
func (s *Sender) Bit() protocol.Bit { return s.bit }

// Timeout returns the retransmission timeout.
func (s *Sender) Timeout() time.Duration { return s.timeout }

// Stats returns a copy of the sender's counters.
func (s *Sender) Stats() SenderStats { return s.stats }

// Send delivers payload and returns once the receiver has acknowledged it.
// Loss, corruption and stale ACKs are retried without limit; Send only
// fails on ctx cancellation or a socket-level error.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	pkt, err := protocol.NewDataPacket(s.bit, payload)
	if err != nil {
		return fmt.Errorf("%w: %d bytes (max %d)", err, len(payload), protocol.MaxPayloadSize)
	}
	data := protocol.EncodeData(pkt)

	// A fresh socket per message: replies to earlier messages can never
	// reach it.
	conn, err := net.DialUDP("udp4", nil, s.dest)
	if err != nil {
		return fmt.Errorf("failed to open socket to %s: %w", s.dest, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, protocol.MaxPacketSize+1)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			s.stats.Retransmits++
			util.LogDebug("[bit %d] retransmitting (attempt %d)", s.bit, attempt+1)
		}

		if _, err := conn.Write(data); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, syscall.ECONNREFUSED) {
				return fmt.Errorf("failed to send packet: %w", err)
			}
			// A refusal reported for the previous attempt.
			s.stats.Timeouts++
			if err := sleepUntil(ctx, time.Now().Add(s.timeout)); err != nil {
				return err
			}
			continue
		}

		acked, err := s.awaitAck(ctx, conn, buf)
		if err != nil {
			return err
		}
		if acked {
			util.LogDebug("[bit %d] acknowledged after %d attempt(s)", s.bit, attempt+1)
			s.bit = s.bit.Flip()
			s.stats.Sent++
			return nil
		}
	}
}

// awaitAck waits up to one timeout for a valid ACK of the current bit.
// It returns false when the packet should be retransmitted.
func (s *Sender) awaitAck(ctx context.Context, conn *net.UDPConn, buf []byte) (bool, error) {
	deadline := time.Now().Add(s.timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return false, fmt.Errorf("failed to set read deadline: %w", err)
	}

	n, err := conn.Read(buf)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.stats.Timeouts++
		return false, nil
	case errors.Is(err, syscall.ECONNREFUSED):
		// Nobody listening yet; treat like a lost packet but keep the pace.
		s.stats.Timeouts++
		return false, sleepUntil(ctx, deadline)
	default:
		return false, fmt.Errorf("failed to read ACK: %w", err)
	}

	if n > protocol.MaxPacketSize {
		return false, fmt.Errorf("%w: %d bytes", protocol.ErrOversized, n)
	}

	ack, err := protocol.DecodeAck(buf[:n])
	if err != nil || !ack.Valid() {
		s.stats.BadAcks++
		util.LogDebug("[bit %d] corrupt ACK", s.bit)
		return false, nil
	}
	if ack.SeqBit != s.bit {
		s.stats.BadAcks++
		util.LogDebug("[bit %d] stale ACK for bit %d", s.bit, ack.SeqBit)
		return false, nil
	}
	return true, nil
}

func sleepUntil(ctx context.Context, t time.Time) error {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
