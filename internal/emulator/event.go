package emulator

import "time"

// EventKind classifies what happened to a datagram inside a pipe.
type EventKind string

const (
	EventForward  EventKind = "forward"  // relayed to its destination
	EventDrop     EventKind = "drop"     // discarded by loss emulation
	EventCorrupt  EventKind = "corrupt"  // mutated, still relayed
	EventUnrouted EventKind = "unrouted" // ACK arrived before any return route was known
	EventRoute    EventKind = "route"    // data pipe learned a new return route
)

// Event is emitted for every notable datagram. It is also the JSON message
// streamed by the monitor feed.
type Event struct {
	Pipe  string    `json:"pipe"`
	Kind  EventKind `json:"kind"`
	Count int64     `json:"count,omitempty"` // running total for drop/corrupt/unrouted
	Bytes int       `json:"bytes"`
	Addr  string    `json:"addr,omitempty"`
	Via   string    `json:"via,omitempty"` // local address a route event's datagram was sent to
	Time  time.Time `json:"time"`
}

// Observer receives events synchronously from the pipe goroutines and must
// not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }
