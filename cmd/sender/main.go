// Sender reads lines from stdin and delivers each one reliably to the
// receiver through an alternating-bit protocol.
//
// Usage: sender [-debug] [-timeout 500ms] <port>
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/advaypal/CS2105/internal/config"
	"github.com/advaypal/CS2105/internal/protocol"
	"github.com/advaypal/CS2105/internal/rdt"
	"github.com/advaypal/CS2105/internal/util"
)

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	timeout := flag.Duration("timeout", config.DefaultTimeout, "Retransmission timeout")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: sender [-debug] [-timeout 500ms] <port>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg, err := config.ParseSender(flag.Args())
	if err != nil {
		if errors.Is(err, config.ErrUsage) {
			flag.Usage()
		} else {
			util.LogError("%v", err)
		}
		os.Exit(1)
	}
	cfg.Timeout = *timeout
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// run sends every stdin line, pausing between lines so that the emulator
// is not overrun.
func run(ctx context.Context, cfg config.Sender) error {
	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}

	s := rdt.NewSender(dest, rdt.WithTimeout(cfg.Timeout))
	util.LogInfo("sending to %s (timeout %v)", dest, cfg.Timeout)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, protocol.MaxPacketSize), 64*protocol.MaxPacketSize)

	for scanner.Scan() {
		if err := s.Send(ctx, scanner.Bytes()); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}

		select {
		case <-time.After(cfg.Pacing):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	st := s.Stats()
	util.LogInfo("sent %d message(s), %d retransmission(s), %d timeout(s), %d bad ACK(s)",
		st.Sent, st.Retransmits, st.Timeouts, st.BadAcks)
	return nil
}
