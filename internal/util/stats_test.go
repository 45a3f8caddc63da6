package util

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%v): got %q, want %q", tc.in, got, tc.want)
		}
		if got := FormatBytes(tc.in); len(got) != 8 {
			t.Errorf("FormatBytes(%v): width %d, want 8", tc.in, len(got))
		}
	}
}

func TestPipeStatsSnapshot(t *testing.T) {
	s := NewPipeStats("data")
	s.AddRecv(100)
	s.AddRecv(50)
	s.AddForward(100)
	if n := s.AddDrop(); n != 1 {
		t.Errorf("AddDrop returned %d, want 1", n)
	}
	if n := s.AddCorrupt(); n != 1 {
		t.Errorf("AddCorrupt returned %d, want 1", n)
	}

	snap := s.Snapshot()
	if snap.RecvPackets != 2 || snap.RecvBytes != 150 || snap.ForwardedBytes != 100 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Dropped != 1 || snap.Corrupted != 1 || snap.Unrouted != 0 {
		t.Errorf("unexpected fault counters: %+v", snap)
	}
}

func TestFormatStats(t *testing.T) {
	cur := PipeSnapshot{Name: "ack", RecvBytes: 2048, ForwardedBytes: 1024, Dropped: 3}
	line := formatStats(cur, PipeSnapshot{}, time.Second)
	for _, want := range []string{"ack", "2.0 KiB/s", "1.0 KiB/s", "Drop:   3"} {
		if !strings.Contains(line, want) {
			t.Errorf("%q missing %q", line, want)
		}
	}
}

func TestStartStatsReporterNonPositiveInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Must return without starting a ticker.
	StartStatsReporter(ctx, 0, NewPipeStats("data"))
	StartStatsReporter(ctx, -time.Second, NewPipeStats("ack"))
}
