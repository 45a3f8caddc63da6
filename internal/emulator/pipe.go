package emulator

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/advaypal/CS2105/internal/protocol"
	"github.com/advaypal/CS2105/internal/util"
)

// pipe relays datagrams in one direction, applying its injector to each.
// It is owned by a single goroutine.
type pipe struct {
	name string
	src  *ipv4.PacketConn
	dst  *ipv4.PacketConn

	target func() net.Addr // destination; nil result means unknown
	learn  func(from net.Addr, via net.IP) // origin and local destination of every datagram, may be nil

	faults *injector
	stats  *util.PipeStats
	notify func(Event)
}

// run forwards until ctx is cancelled (returns nil) or an I/O error or
// oversized datagram occurs (returns the error).
func (p *pipe) run(ctx context.Context) error {
	buf := make([]byte, protocol.MaxPacketSize+1)

	for {
		n, cm, from, err := p.src.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s pipe: read failed: %w", p.name, err)
		}
		p.stats.AddRecv(n)

		if n > protocol.MaxPacketSize {
			return fmt.Errorf("%s pipe: %w: %d bytes from %s", p.name, protocol.ErrOversized, n, from)
		}
		var via net.IP
		if cm != nil {
			via = cm.Dst
			util.LogDebug("[%s] %d bytes from %s (ttl=%d, dst=%s)", p.name, n, from, cm.TTL, cm.Dst)
		}

		if p.learn != nil {
			p.learn(from, via)
		}

		pkt := buf[:n]
		v := p.faults.apply(pkt)

		if v.drop {
			count := p.stats.AddDrop()
			util.LogInfo("[%s] %d packet(s) dropped", p.name, count)
			p.emit(EventDrop, count, n, nil)
			continue
		}
		if v.corrupt {
			count := p.stats.AddCorrupt()
			util.LogInfo("[%s] %d packet(s) corrupted", p.name, count)
			p.emit(EventCorrupt, count, n, nil)
		}

		if !sleep(ctx, v.delay) {
			return nil
		}

		dst := p.target()
		if dst == nil {
			count := p.stats.AddUnrouted()
			util.LogWarning("[%s] no return route yet, discarding %d bytes", p.name, n)
			p.emit(EventUnrouted, count, n, nil)
			continue
		}

		if _, err := p.dst.WriteTo(pkt, nil, dst); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s pipe: write to %s failed: %w", p.name, dst, err)
		}
		p.stats.AddForward(n)
		p.emit(EventForward, 0, n, dst)
	}
}

func (p *pipe) emit(kind EventKind, count int64, n int, addr net.Addr) {
	if p.notify == nil {
		return
	}
	ev := Event{Pipe: p.name, Kind: kind, Count: count, Bytes: n, Time: time.Now()}
	if addr != nil {
		ev.Addr = addr.String()
	}
	p.notify(ev)
}

// sleep waits for d; it returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
