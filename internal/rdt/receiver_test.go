package rdt_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/advaypal/CS2105/internal/protocol"
	"github.com/advaypal/CS2105/internal/rdt"
)

// startReceiver binds a Receiver on an ephemeral loopback port and returns
// it with a client socket connected to it.
func startReceiver(t *testing.T) (*rdt.Receiver, *net.UDPConn) {
	t.Helper()
	r, err := rdt.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	client, err := net.DialUDP("udp4", nil, r.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return r, client
}

func dataPacket(t *testing.T, bit protocol.Bit, payload string) []byte {
	t.Helper()
	pkt, err := protocol.NewDataPacket(bit, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return protocol.EncodeData(pkt)
}

// readAck reads one ACK from the client socket and checks its validity.
func readAck(t *testing.T, client *net.UDPConn) protocol.Bit {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("no ACK received: %v", err)
	}
	ack, err := protocol.DecodeAck(buf[:n])
	if err != nil || !ack.Valid() {
		t.Fatalf("invalid ACK: %v", err)
	}
	return ack.SeqBit
}

// TestReceiverSequence walks the receiver through a scripted exchange.
// Every step is acknowledged with the bit of the last delivered packet.
func TestReceiverSequence(t *testing.T) {
	r, client := startReceiver(t)

	corrupt := dataPacket(t, protocol.Bit1, "garbled")
	corrupt[len(corrupt)-1]++

	steps := []struct {
		name      string
		datagram  []byte
		delivered string // empty means nothing delivered
		ackBit    protocol.Bit
	}{
		{"corrupt before first delivery", corrupt, "", protocol.Bit1},
		{"bit 1 before first delivery is old", dataPacket(t, protocol.Bit1, "stale"), "", protocol.Bit1},
		{"first packet", dataPacket(t, protocol.Bit0, "hello"), "hello", protocol.Bit0},
		{"duplicate of first packet", dataPacket(t, protocol.Bit0, "hello"), "", protocol.Bit0},
		{"corrupt second packet", corrupt, "", protocol.Bit0},
		{"short datagram", []byte{9, 9, 9}, "", protocol.Bit0},
		{"second packet", dataPacket(t, protocol.Bit1, "world"), "world", protocol.Bit1},
		{"third packet", dataPacket(t, protocol.Bit0, ""), "", protocol.Bit0},
	}

	for _, step := range steps {
		if _, err := client.Write(step.datagram); err != nil {
			t.Fatalf("%s: write failed: %v", step.name, err)
		}

		payload, ok, err := r.ReceiveOne()
		if err != nil {
			t.Fatalf("%s: ReceiveOne failed: %v", step.name, err)
		}
		if string(payload) != step.delivered {
			t.Errorf("%s: delivered %q, want %q", step.name, payload, step.delivered)
		}
		if got := readAck(t, client); got != step.ackBit {
			t.Errorf("%s: ACK bit %d, want %d", step.name, got, step.ackBit)
		}
		if step.name == "third packet" && !ok {
			t.Errorf("%s: empty payload should still be delivered", step.name)
		}
	}

	st := r.Stats()
	if st.Delivered != 3 || st.Duplicates != 2 || st.Corrupt != 3 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestReceiverRejectsOversized(t *testing.T) {
	r, client := startReceiver(t)

	if _, err := client.Write(make([]byte, protocol.MaxPacketSize+1)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, _, err := r.ReceiveOne(); !errors.Is(err, protocol.ErrOversized) {
		t.Fatalf("got %v, want ErrOversized", err)
	}
}

// failingAcks is a socket whose writes always fail.
type failingAcks struct {
	net.PacketConn
}

var errAckWrite = errors.New("ack write refused")

func (failingAcks) WriteTo([]byte, net.Addr) (int, error) { return 0, errAckWrite }

// TestReceiverKeepsPayloadWhenAckFails checks that an accepted packet is
// still handed out when its ACK cannot be written.
func TestReceiverKeepsPayloadWhenAckFails(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	r := rdt.NewReceiver(failingAcks{conn})
	defer r.Close()

	client, err := net.DialUDP("udp4", nil, conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer client.Close()
	client.Write(dataPacket(t, protocol.Bit0, "keep me"))

	payload, ok, err := r.ReceiveOne()
	if !errors.Is(err, errAckWrite) {
		t.Fatalf("got error %v, want %v", err, errAckWrite)
	}
	if !ok || string(payload) != "keep me" {
		t.Fatalf("payload lost: ok=%v payload=%q", ok, payload)
	}
	if st := r.Stats(); st.Delivered != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

// TestSenderReceiverDirect connects both ends without an emulator.
func TestSenderReceiverDirect(t *testing.T) {
	r, err := rdt.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx, func(p []byte) { got <- string(p) })
	}()

	s := rdt.NewSender(r.Addr().(*net.UDPAddr), rdt.WithTimeout(testTimeout))
	lines := []string{"one", "two", "three", "four"}
	for _, line := range lines {
		if err := s.Send(ctx, []byte(line)); err != nil {
			t.Fatalf("Send(%q) failed: %v", line, err)
		}
	}

	for _, want := range lines {
		if line := <-got; line != want {
			t.Errorf("delivered %q, want %q", line, want)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v after cancellation, want nil", err)
	}
}
