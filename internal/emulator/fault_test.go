package emulator

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/advaypal/CS2105/internal/config"
)

// makeStream builds n packets of varying length with deterministic content.
func makeStream(n int) [][]byte {
	stream := make([][]byte, n)
	for i := range stream {
		pkt := make([]byte, 12+i%40)
		for j := range pkt {
			pkt[j] = byte((i + j) % 251)
		}
		stream[i] = pkt
	}
	return stream
}

// TestInjectorDeterminism replays the same stream through two injectors
// with the same seed and expects identical verdicts and mutations.
func TestInjectorDeterminism(t *testing.T) {
	fault := config.Fault{CorruptRate: 0.4, DropRate: 0.3}
	a := newInjector(fault, 0, 20*time.Millisecond, 42)
	b := newInjector(fault, 0, 20*time.Millisecond, 42)

	for i, pkt := range makeStream(200) {
		pa := append([]byte(nil), pkt...)
		pb := append([]byte(nil), pkt...)

		va, vb := a.apply(pa), b.apply(pb)
		if va != vb {
			t.Fatalf("packet %d: verdicts diverge: %+v vs %+v", i, va, vb)
		}
		if !bytes.Equal(pa, pb) {
			t.Fatalf("packet %d: corruption diverges", i)
		}
	}
}

// TestPacketLengthDoesNotShiftDecisions feeds two same-seed injectors
// packets of different lengths. Byte-level corruption must not consume
// draws from the per-datagram generator.
func TestPacketLengthDoesNotShiftDecisions(t *testing.T) {
	fault := config.Fault{CorruptRate: 0.5, DropRate: 0.2}
	short := newInjector(fault, 0, 20*time.Millisecond, 13)
	long := newInjector(fault, 0, 20*time.Millisecond, 13)

	for i := range 500 {
		vs := short.apply(make([]byte, 12))
		vl := long.apply(make([]byte, 12+i%900))
		if vs != vl {
			t.Fatalf("packet %d: verdicts diverge: %+v vs %+v", i, vs, vl)
		}
	}
}

// TestLaterByteCorruptionRate measures how often bytes after the first are
// altered once a datagram is chosen for corruption.
func TestLaterByteCorruptionRate(t *testing.T) {
	in := newInjector(config.Fault{CorruptRate: 1}, 0, 0, 21)

	const packets, size = 100, 1000
	changed := 0
	for range packets {
		pkt := bytes.Repeat([]byte{200}, size)
		in.apply(pkt)
		for _, b := range pkt[1:] {
			if b != 200 {
				changed++
			}
		}
	}

	ratio := float64(changed) / float64(packets*(size-1))
	if ratio < byteCorruptRate-0.02 || ratio > byteCorruptRate+0.02 {
		t.Errorf("later-byte corruption ratio %.3f, want about %.1f", ratio, byteCorruptRate)
	}
}

func TestInjectorSeedsDiffer(t *testing.T) {
	fault := config.Fault{DropRate: 0.5}
	a := newInjector(fault, 0, 0, 1)
	b := newInjector(fault, 0, 0, 2)

	same := 0
	for _, pkt := range makeStream(200) {
		if a.apply(append([]byte(nil), pkt...)).drop == b.apply(append([]byte(nil), pkt...)).drop {
			same++
		}
	}
	if same == 200 {
		t.Error("different seeds produced identical drop decisions")
	}
}

func TestInjectorExtremeRates(t *testing.T) {
	never := newInjector(config.Fault{}, 0, 0, 7)
	always := newInjector(config.Fault{DropRate: 1}, 0, 0, 7)
	corruptAll := newInjector(config.Fault{CorruptRate: 1}, 0, 0, 7)

	for i, pkt := range makeStream(100) {
		if v := never.apply(append([]byte(nil), pkt...)); v.drop || v.corrupt {
			t.Fatalf("packet %d: zero rates produced %+v", i, v)
		}
		if v := always.apply(append([]byte(nil), pkt...)); !v.drop {
			t.Fatalf("packet %d: drop rate 1 did not drop", i)
		}
		if v := corruptAll.apply(append([]byte(nil), pkt...)); v.drop || !v.corrupt {
			t.Fatalf("packet %d: corrupt rate 1 produced %+v", i, v)
		}
	}
}

// TestCorruptionAlwaysChangesFirstByte checks the first-byte rule and that
// length is preserved.
func TestCorruptionAlwaysChangesFirstByte(t *testing.T) {
	in := newInjector(config.Fault{CorruptRate: 1}, 0, 0, 3)

	for first := 0; first < 256; first++ {
		pkt := []byte{byte(first), 'h', 'e', 'l', 'l', 'o'}
		in.apply(pkt)

		if want := byte((first + 1) % 256 % 10); pkt[0] != want {
			t.Fatalf("first byte %d: got %d, want %d", first, pkt[0], want)
		}
		if len(pkt) != 6 {
			t.Fatalf("length changed to %d", len(pkt))
		}
	}
}

func TestInjectorDelayBounds(t *testing.T) {
	in := newInjector(config.Fault{}, 5*time.Millisecond, 9*time.Millisecond, 11)
	seen := map[time.Duration]bool{}

	for range 500 {
		v := in.apply([]byte{1})
		if v.delay < 5*time.Millisecond || v.delay > 9*time.Millisecond {
			t.Fatalf("delay %v outside [5ms, 9ms]", v.delay)
		}
		seen[v.delay] = true
	}
	if !seen[5*time.Millisecond] || !seen[9*time.Millisecond] {
		t.Errorf("bounds should be inclusive, saw %v", seen)
	}
}

func TestReturnRoute(t *testing.T) {
	var r returnRoute
	if r.load() != nil {
		t.Fatal("route must be nil before any data packet")
	}

	a := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
	if !r.publish(a) {
		t.Error("first publish should report a change")
	}
	if r.publish(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}) {
		t.Error("same address should not report a change")
	}
	if !r.publish(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4001}) {
		t.Error("new port should report a change")
	}
	if got := r.load().(*net.UDPAddr).Port; got != 4001 {
		t.Errorf("route port: got %d, want 4001", got)
	}
}

// TestAckBeforeRouteIsDiscarded sends a reply into the receiver-facing
// socket before any data packet and expects it to be counted as unrouted.
func TestAckBeforeRouteIsDiscarded(t *testing.T) {
	e, err := New(config.Emulator{ReceiverHost: "127.0.0.1", ReceiverPort: 9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	port := e.receiverConn.LocalAddr().(*net.UDPAddr).Port
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte("early ack"))

	deadline := time.Now().Add(2 * time.Second)
	for e.ack.stats.Unrouted.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("ack was not discarded as unrouted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := e.ack.stats.ForwardedBytes.Load(); n != 0 {
		t.Errorf("nothing should be forwarded, got %d bytes", n)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v after cancellation", err)
	}
}
