// Package emulator relays datagrams between a sender and a receiver while
// injecting loss, corruption and propagation delay.
//
// Two pipes run concurrently. The data pipe reads from the sender-facing
// socket and relays to the receiver's fixed address. The ack pipe reads the
// receiver's replies from a second, ephemeral socket and relays them to the
// origin of the most recent data packet, since the sender opens a new
// socket for every message.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/advaypal/CS2105/internal/config"
	"github.com/advaypal/CS2105/internal/util"
)

// Pipe names, used in logs, stats and events.
const (
	PipeData = "data"
	PipeAck  = "ack"
)

// Emulator is a lossy two-way relay. Run may be called once.
type Emulator struct {
	cfg config.Emulator

	senderConn   *net.UDPConn // sender ↔ emulator
	receiverConn *net.UDPConn // emulator ↔ receiver
	rcvAddr      *net.UDPAddr

	route returnRoute

	data *pipe
	ack  *pipe

	observer  Observer
	closeOnce sync.Once
}

// Option customizes an Emulator.
type Option func(*Emulator)

// WithObserver installs an observer for per-datagram events.
func WithObserver(o Observer) Option {
	return func(e *Emulator) { e.observer = o }
}

// New validates cfg and binds both sockets. Nothing is relayed until Run.
func New(cfg config.Emulator, opts ...Option) (*Emulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host := cfg.ReceiverHost
	if host == "" {
		host = config.DefaultHost
	}
	rcvAddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(cfg.ReceiverPort)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receiver address: %w", err)
	}

	senderConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.ListenPort})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.ListenPort, err)
	}
	receiverConn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		senderConn.Close()
		return nil, fmt.Errorf("failed to open receiver-facing socket: %w", err)
	}

	e := &Emulator{
		cfg:          cfg,
		senderConn:   senderConn,
		receiverConn: receiverConn,
		rcvAddr:      rcvAddr,
	}
	for _, opt := range opts {
		opt(e)
	}

	senderSide := newPacketConn(senderConn)
	receiverSide := newPacketConn(receiverConn)

	// Both pipes start from the same seed, each with its own generators.
	e.data = &pipe{
		name:   PipeData,
		src:    senderSide,
		dst:    receiverSide,
		target: func() net.Addr { return e.rcvAddr },
		learn:  e.learnRoute,
		faults: newInjector(cfg.Data, cfg.MinDelay, cfg.MaxDelay, cfg.Seed),
		stats:  util.NewPipeStats(PipeData),
		notify: e.notify,
	}
	e.ack = &pipe{
		name:   PipeAck,
		src:    receiverSide,
		dst:    senderSide,
		target: e.route.load,
		faults: newInjector(cfg.Ack, cfg.MinDelay, cfg.MaxDelay, cfg.Seed),
		stats:  util.NewPipeStats(PipeAck),
		notify: e.notify,
	}

	return e, nil
}

// newPacketConn wraps c so that each read also reports TTL and destination
// address. Platforms without control message support still relay.
func newPacketConn(c *net.UDPConn) *ipv4.PacketConn {
	pc := ipv4.NewPacketConn(c)
	if err := pc.SetControlMessage(ipv4.FlagTTL|ipv4.FlagDst, true); err != nil {
		util.LogDebug("control messages unavailable on %s: %v", c.LocalAddr(), err)
	}
	return pc
}

// Addr returns the loopback address of the sender-facing socket.
func (e *Emulator) Addr() *net.UDPAddr {
	port := e.senderConn.LocalAddr().(*net.UDPAddr).Port
	return &net.UDPAddr{IP: net.ParseIP(config.DefaultHost), Port: port}
}

// Config returns the configuration the emulator was built with.
func (e *Emulator) Config() config.Emulator { return e.cfg }

// Stats returns a snapshot of both pipes, data first.
func (e *Emulator) Stats() []util.PipeSnapshot {
	return []util.PipeSnapshot{e.data.stats.Snapshot(), e.ack.stats.Snapshot()}
}

// PipeStats exposes the live counters for periodic reporting.
func (e *Emulator) PipeStats() []*util.PipeStats {
	return []*util.PipeStats{e.data.stats, e.ack.stats}
}

// Summary returns the cumulative shutdown report.
func (e *Emulator) Summary() string {
	d, a := e.data.stats.Snapshot(), e.ack.stats.Snapshot()
	return fmt.Sprintf("Forwarded %d bytes (data: %d dropped, %d corrupted; ack: %d dropped, %d corrupted, %d unrouted)",
		d.ForwardedBytes+a.ForwardedBytes, d.Dropped, d.Corrupted, a.Dropped, a.Corrupted, a.Unrouted)
}

// Run relays in both directions until ctx is cancelled, returning nil, or
// until either pipe fails, returning that pipe's error. Both sockets are
// closed on return.
func (e *Emulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { e.Close() })
	defer stop()
	defer e.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- e.data.run(ctx) }()
	go func() { errCh <- e.ack.run(ctx) }()

	err := <-errCh
	cancel()
	return errors.Join(err, <-errCh)
}

// Close releases both sockets. Safe to call multiple times.
func (e *Emulator) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = errors.Join(e.senderConn.Close(), e.receiverConn.Close())
	})
	return err
}

// learnRoute publishes from as the return route. via is the local address
// the sender reached, when the platform reports it.
func (e *Emulator) learnRoute(from net.Addr, via net.IP) {
	if !e.route.publish(from) {
		return
	}
	ev := Event{Pipe: PipeData, Kind: EventRoute, Addr: from.String()}
	if via != nil {
		ev.Via = via.String()
	}
	util.LogDebug("[%08x] return route is now %s (via %s)", util.RouteID(from), from, via)
	e.notify(ev)
}

func (e *Emulator) notify(ev Event) {
	if e.observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.observer.OnEvent(ev)
}
