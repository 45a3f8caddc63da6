// Emulator is an unreliable network between sender and receiver. It relays
// data packets to the receiver and ACKs back to the sender, injecting
// faults at configurable rates.
//
// Usage:
//
//	emulator [flags] <P_DATA_CORRUPT> <P_DATA_LOSS> <P_ACK_CORRUPT> <P_ACK_LOSS> <emulatorPort> <rcvPort>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/advaypal/CS2105/internal/config"
	"github.com/advaypal/CS2105/internal/emulator"
	"github.com/advaypal/CS2105/internal/monitor"
	"github.com/advaypal/CS2105/internal/util"
)

const usage = "Usage: emulator [flags] <P_DATA_CORRUPT> <P_DATA_LOSS> <P_ACK_CORRUPT> <P_ACK_LOSS> <emulatorPort> <rcvPort>"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	minDelay := flag.Int("min-delay", 0, "Minimum propagation delay in milliseconds")
	maxDelay := flag.Int("max-delay", 0, "Maximum propagation delay in milliseconds")
	seed := flag.Int64("seed", 0, "Seed for the loss and corruption generators")
	rcvHost := flag.String("receiver-host", config.DefaultHost, "Receiver host")
	monitorPort := flag.Int("monitor", 0, "Serve a WebSocket event feed on this port (0 disables it)")
	statsEvery := flag.Duration("stats", 10*time.Second, "Throughput report interval")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg, err := config.ParseEmulator(flag.Args())
	if err != nil {
		if errors.Is(err, config.ErrUsage) {
			flag.Usage()
		} else {
			util.LogError("%v", err)
		}
		os.Exit(1)
	}
	cfg.MinDelay = time.Duration(*minDelay) * time.Millisecond
	cfg.MaxDelay = time.Duration(*maxDelay) * time.Millisecond
	cfg.Seed = *seed
	cfg.ReceiverHost = *rcvHost
	cfg.MonitorPort = *monitorPort

	if err := config.PositiveDuration("stats interval", *statsEvery); err != nil {
		util.LogError("%v", err)
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(ctx, cfg, *statsEvery); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Emulator, statsEvery time.Duration) error {
	var opts []emulator.Option

	if cfg.MonitorPort > 0 {
		pin := monitor.GeneratePIN(6)
		hub := monitor.NewHub(pin)
		port, err := hub.Start(fmt.Sprintf("127.0.0.1:%d", cfg.MonitorPort))
		if err != nil {
			return err
		}
		defer hub.Close()

		opts = append(opts, emulator.WithObserver(hub))
		util.LogInfo("event feed: %s", monitor.URL("127.0.0.1", port, pin))
	}

	emu, err := emulator.New(cfg, opts...)
	if err != nil {
		return err
	}

	printConfig(cfg, emu)
	util.StartStatsReporter(ctx, statsEvery, emu.PipeStats()...)

	// The summary is printed however the run ends.
	defer func() { pterm.Info.Println(emu.Summary()) }()

	return emu.Run(ctx)
}

// printConfig renders the effective configuration as a table.
func printConfig(cfg config.Emulator, emu *emulator.Emulator) {
	rate := func(r float64) string { return strconv.FormatFloat(r, 'f', -1, 64) }

	data := pterm.TableData{
		{"Setting", "Value"},
		{"emulator port", strconv.Itoa(emu.Addr().Port)},
		{"receiver", fmt.Sprintf("%s:%d", cfg.ReceiverHost, cfg.ReceiverPort)},
		{"data corruption rate", rate(cfg.Data.CorruptRate)},
		{"data loss rate", rate(cfg.Data.DropRate)},
		{"ack corruption rate", rate(cfg.Ack.CorruptRate)},
		{"ack loss rate", rate(cfg.Ack.DropRate)},
		{"min propagation delay", cfg.MinDelay.String()},
		{"max propagation delay", cfg.MaxDelay.String()},
		{"seed", strconv.FormatInt(cfg.Seed, 10)},
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(os.Stderr).Render(); err != nil {
		util.LogWarning("failed to render configuration: %v", err)
	}
}
