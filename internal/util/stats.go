package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-pipe traffic counters
// ──────────────────────────────────────────────────────────────────────────────

// PipeStats counts the traffic seen by one emulator forwarding pipe.
// All fields are updated atomically by the pipe goroutine and may be read
// concurrently by reporters.
type PipeStats struct {
	Name string

	RecvPackets    atomic.Int64 // datagrams read from the source socket
	RecvBytes      atomic.Int64 // bytes read from the source socket
	ForwardedBytes atomic.Int64 // bytes written to the destination
	Dropped        atomic.Int64 // datagrams discarded by loss emulation
	Corrupted      atomic.Int64 // datagrams mutated before forwarding
	Unrouted       atomic.Int64 // datagrams discarded for lack of a destination
}

// NewPipeStats returns zeroed counters labelled with name.
func NewPipeStats(name string) *PipeStats {
	return &PipeStats{Name: name}
}

func (s *PipeStats) AddRecv(n int) {
	s.RecvPackets.Add(1)
	s.RecvBytes.Add(int64(n))
}

func (s *PipeStats) AddForward(n int)   { s.ForwardedBytes.Add(int64(n)) }
func (s *PipeStats) AddDrop() int64     { return s.Dropped.Add(1) }
func (s *PipeStats) AddCorrupt() int64  { return s.Corrupted.Add(1) }
func (s *PipeStats) AddUnrouted() int64 { return s.Unrouted.Add(1) }

// PipeSnapshot is a point-in-time copy of PipeStats.
type PipeSnapshot struct {
	Name           string
	RecvPackets    int64
	RecvBytes      int64
	ForwardedBytes int64
	Dropped        int64
	Corrupted      int64
	Unrouted       int64
}

// Snapshot loads every counter.
func (s *PipeStats) Snapshot() PipeSnapshot {
	return PipeSnapshot{
		Name:           s.Name,
		RecvPackets:    s.RecvPackets.Load(),
		RecvBytes:      s.RecvBytes.Load(),
		ForwardedBytes: s.ForwardedBytes.Load(),
		Dropped:        s.Dropped.Load(),
		Corrupted:      s.Corrupted.Load(),
		Unrouted:       s.Unrouted.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs per-pipe throughput
// every interval, skipping idle periods. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration, pipes ...*PipeStats) {
	if interval <= 0 {
		LogWarning("stats reporting disabled: interval %v", interval)
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := make([]PipeSnapshot, len(pipes))
		for {
			select {
			case <-ticker.C:
				for i, p := range pipes {
					cur := p.Snapshot()
					if cur.RecvPackets != prev[i].RecvPackets {
						pterm.DefaultLogger.Info(formatStats(cur, prev[i], interval))
					}
					prev[i] = cur
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a one-line throughput summary of a pipe for the logger.
func formatStats(cur, prev PipeSnapshot, interval time.Duration) string {
	secs := interval.Seconds()
	return fmt.Sprintf("%-4s | In: %s/s | Out: %s/s | Drop: %3d | Corrupt: %3d",
		cur.Name,
		FormatBytes(float64(cur.RecvBytes-prev.RecvBytes)/secs),
		FormatBytes(float64(cur.ForwardedBytes-prev.ForwardedBytes)/secs),
		cur.Dropped-prev.Dropped,
		cur.Corrupted-prev.Corrupted,
	)
}
