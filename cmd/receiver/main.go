// Receiver accepts packets from the sender, acknowledges them and prints
// every newly delivered message to stdout.
//
// Usage: receiver [-debug] <port>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/advaypal/CS2105/internal/config"
	"github.com/advaypal/CS2105/internal/rdt"
	"github.com/advaypal/CS2105/internal/util"
)

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: receiver [-debug] <port>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg, err := config.ParseReceiver(flag.Args())
	if err != nil {
		if errors.Is(err, config.ErrUsage) {
			flag.Usage()
		} else {
			util.LogError("%v", err)
		}
		os.Exit(1)
	}

	r, err := rdt.Listen("", cfg.Port)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("listening on %s", r.Addr())

	err = r.Serve(ctx, func(payload []byte) {
		fmt.Println(string(payload))
	})

	st := r.Stats()
	util.LogInfo("delivered %d message(s), %d duplicate(s), %d corrupt packet(s)",
		st.Delivered, st.Duplicates, st.Corrupt)

	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
