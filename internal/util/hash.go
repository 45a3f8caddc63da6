// Package util provides shared logging, counters and small helpers.
package util

import (
	"hash/fnv"
	"net"
)

// RouteID computes a 4-byte hash of a datagram address, used as a short
// log prefix when the emulator learns or uses a return route.
func RouteID(addr net.Addr) uint32 {
	h := fnv.New32a()
	h.Write([]byte(addr.Network()))
	h.Write([]byte(addr.String()))
	return h.Sum32()
}
