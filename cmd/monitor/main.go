// Monitor connects to a running emulator's event feed and prints each
// event as it happens.
//
// Usage: monitor <ws-url>   (as printed by `emulator -monitor <port>`)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/advaypal/CS2105/internal/emulator"
	"github.com/advaypal/CS2105/internal/monitor"
	"github.com/advaypal/CS2105/internal/util"
)

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: monitor <ws-url>")
		os.Exit(1)
	}

	wsURL, err := monitor.NormalizeURL(os.Args[1])
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("watching %s", wsURL)
	if err := monitor.Watch(ctx, wsURL, printEvent); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("feed closed")
}

// printEvent renders one event, colored by kind.
func printEvent(ev emulator.Event) {
	ts := ev.Time.Format("15:04:05.000")

	switch ev.Kind {
	case emulator.EventDrop:
		pterm.Warning.Printfln("%s %-4s drop #%d (%d bytes)", ts, ev.Pipe, ev.Count, ev.Bytes)
	case emulator.EventCorrupt:
		pterm.Error.Printfln("%s %-4s corrupt #%d (%d bytes)", ts, ev.Pipe, ev.Count, ev.Bytes)
	case emulator.EventUnrouted:
		pterm.Warning.Printfln("%s %-4s unrouted #%d (%d bytes)", ts, ev.Pipe, ev.Count, ev.Bytes)
	case emulator.EventRoute:
		if ev.Via != "" {
			pterm.Info.Printfln("%s return route %s (sender reached %s)", ts, ev.Addr, ev.Via)
		} else {
			pterm.Info.Printfln("%s return route %s", ts, ev.Addr)
		}
	default:
		pterm.Success.Printfln("%s %-4s %d bytes → %s", ts, ev.Pipe, ev.Bytes, ev.Addr)
	}
}
