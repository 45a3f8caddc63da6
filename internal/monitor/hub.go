// Package monitor streams emulator events to WebSocket clients, so a lossy
// run can be watched live from another terminal.
package monitor

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/advaypal/CS2105/internal/emulator"
	"github.com/advaypal/CS2105/internal/util"
)

// Tuning constants.
const (
	clientBufferSize = 64 // per-client event queue
	writeTimeout     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is the WebSocket event feed. It implements emulator.Observer.
type Hub struct {
	pin string
	srv *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
}

var _ emulator.Observer = (*Hub)(nil)

// NewHub creates a hub that only accepts clients presenting pin.
func NewHub(pin string) *Hub {
	return &Hub{
		pin:     pin,
		clients: make(map[*client]struct{}),
	}
}

// Start begins listening on addr (host:port, port 0 for a random one).
// Returns the assigned port number.
func (h *Hub) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start monitor server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	h.srv = &http.Server{Handler: mux}

	go func() {
		if err := h.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogWarning("monitor server stopped: %v", err)
		}
	}()

	return port, nil
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("pin") != h.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn)
	h.register(c)
	util.LogInfo("monitor client connected from %s", conn.RemoteAddr())

	go c.writeLoop()
	go c.readLoop()
}

// register adds a client and removes it again once it is closed.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-c.done
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()
}

// OnEvent queues ev for every connected client without blocking. A client
// whose queue is full misses the event.
func (h *Hub) OnEvent(ev emulator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.inbox <- ev:
		default:
			util.LogDebug("monitor client %s is slow, dropping %s event", c.conn.RemoteAddr(), ev.Kind)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops accepting clients and disconnects the current ones.
func (h *Hub) Close() {
	if h.srv != nil {
		h.srv.Close()
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "emulator shutting down"),
			time.Now().Add(writeTimeout))
		c.close()
	}
}

// ---------------------------------------------------------------------------
// client
// ---------------------------------------------------------------------------

// client owns one WebSocket connection. writeLoop is its only writer.
type client struct {
	conn  *websocket.Conn
	inbox chan emulator.Event

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:  conn,
		inbox: make(chan emulator.Event, clientBufferSize),
		done:  make(chan struct{}),
	}
}

func (c *client) writeLoop() {
	defer c.close()

	for {
		select {
		case ev := <-c.inbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				util.LogDebug("monitor client %s write error: %v", c.conn.RemoteAddr(), err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop discards client messages; it exists to notice disconnects.
func (c *client) readLoop() {
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
