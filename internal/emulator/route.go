package emulator

import (
	"net"
	"sync/atomic"
)

// returnRoute holds the address ACKs are sent back to. The data pipe is the
// only writer; the ack pipe reads it.
type returnRoute struct {
	addr atomic.Pointer[net.UDPAddr]
}

// publish records the origin of a data packet. It reports whether the
// route changed.
func (r *returnRoute) publish(a net.Addr) bool {
	udp, ok := a.(*net.UDPAddr)
	if !ok {
		return false
	}
	if cur := r.addr.Load(); cur != nil && cur.Port == udp.Port && cur.IP.Equal(udp.IP) {
		return false
	}
	r.addr.Store(udp)
	return true
}

// load returns the current route, or nil before the first data packet.
func (r *returnRoute) load() net.Addr {
	if a := r.addr.Load(); a != nil {
		return a
	}
	return nil
}
