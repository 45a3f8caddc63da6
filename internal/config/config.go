// Package config holds the per-role configuration types and the parsing of
// their positional command-line arguments.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Protocol defaults.
const (
	DefaultHost    = "127.0.0.1"
	DefaultTimeout = 500 * time.Millisecond // sender retransmission timeout
	DefaultPacing  = 20 * time.Millisecond  // delay between consecutive lines
)

// ErrUsage marks a wrong number of positional arguments.
var ErrUsage = errors.New("wrong number of arguments")

// Sender configures the sending side.
type Sender struct {
	Host    string        // destination host (the emulator, or the receiver directly)
	Port    int           // destination port
	Timeout time.Duration // wait for an ACK before retransmitting
	Pacing  time.Duration // sleep between lines
}

// Receiver configures the receiving side.
type Receiver struct {
	Host string
	Port int
}

// Fault is the fault model of one emulator direction.
type Fault struct {
	CorruptRate float64 // probability of corrupting a datagram
	DropRate    float64 // probability of dropping a datagram
}

// Emulator configures the lossy network emulator.
type Emulator struct {
	Data Fault // sender → receiver
	Ack  Fault // receiver → sender

	MinDelay time.Duration // propagation delay bounds, millisecond granularity
	MaxDelay time.Duration

	ListenPort   int    // port the sender talks to
	ReceiverHost string // where data packets are relayed
	ReceiverPort int

	Seed        int64 // seed for the fault generators
	MonitorPort int   // WebSocket event feed; 0 disables it
}

// ParseSender parses `<port>`.
func ParseSender(args []string) (Sender, error) {
	if len(args) != 1 {
		return Sender{}, ErrUsage
	}
	port, err := ParsePort(args[0])
	if err != nil {
		return Sender{}, err
	}
	return Sender{
		Host:    DefaultHost,
		Port:    port,
		Timeout: DefaultTimeout,
		Pacing:  DefaultPacing,
	}, nil
}

// ParseReceiver parses `<port>`.
func ParseReceiver(args []string) (Receiver, error) {
	if len(args) != 1 {
		return Receiver{}, ErrUsage
	}
	port, err := ParsePort(args[0])
	if err != nil {
		return Receiver{}, err
	}
	return Receiver{Host: DefaultHost, Port: port}, nil
}

// ParseEmulator parses
// `<P_DATA_CORRUPT> <P_DATA_LOSS> <P_ACK_CORRUPT> <P_ACK_LOSS> <emulatorPort> <rcvPort>`.
// Delay bounds default to zero.
func ParseEmulator(args []string) (Emulator, error) {
	if len(args) != 6 {
		return Emulator{}, ErrUsage
	}

	var cfg Emulator
	var err error

	rates := []struct {
		name string
		dst  *float64
	}{
		{"P_DATA_CORRUPT", &cfg.Data.CorruptRate},
		{"P_DATA_LOSS", &cfg.Data.DropRate},
		{"P_ACK_CORRUPT", &cfg.Ack.CorruptRate},
		{"P_ACK_LOSS", &cfg.Ack.DropRate},
	}
	for i, r := range rates {
		if *r.dst, err = ParseRate(r.name, args[i]); err != nil {
			return Emulator{}, err
		}
	}

	if cfg.ListenPort, err = ParsePort(args[4]); err != nil {
		return Emulator{}, err
	}
	if cfg.ReceiverPort, err = ParsePort(args[5]); err != nil {
		return Emulator{}, err
	}
	cfg.ReceiverHost = DefaultHost

	return cfg, nil
}

// Validate checks the timing settings.
func (c Sender) Validate() error {
	if err := PositiveDuration("timeout", c.Timeout); err != nil {
		return err
	}
	if c.Pacing < 0 {
		return fmt.Errorf("invalid pacing %v: must not be negative", c.Pacing)
	}
	return nil
}

// PositiveDuration rejects zero and negative values of a duration flag.
func PositiveDuration(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid %s %v: must be positive", name, d)
	}
	return nil
}

// Validate checks rate and delay bounds.
func (c Emulator) Validate() error {
	for _, r := range []float64{c.Data.CorruptRate, c.Data.DropRate, c.Ack.CorruptRate, c.Ack.DropRate} {
		if r < 0 || r > 1 {
			return fmt.Errorf("rate %v out of range [0, 1]", r)
		}
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("invalid delay bounds [%v, %v]", c.MinDelay, c.MaxDelay)
	}
	if c.ReceiverPort < 1 || c.ReceiverPort > 65535 {
		return fmt.Errorf("invalid receiver port %d", c.ReceiverPort)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid emulator port %d", c.ListenPort)
	}
	return nil
}

// ParsePort parses a port number in 1~65535.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be 1~65535", raw)
	}
	return port, nil
}

// ParseRate parses a probability in [0, 1].
func ParseRate(name, raw string) (float64, error) {
	rate, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || rate < 0 || rate > 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a probability in [0, 1]", name, raw)
	}
	return rate, nil
}
