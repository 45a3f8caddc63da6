package monitor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/advaypal/CS2105/internal/emulator"
)

// URL builds the feed address of a hub listening on host:port.
func URL(host string, port int, pin string) string {
	u := url.URL{
		Scheme:   "ws",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/ws",
		RawQuery: url.Values{"pin": {pin}}.Encode(),
	}
	return u.String()
}

// NormalizeURL accepts "host:port?pin=…" or a full ws:// URL and returns a
// ws URL pointing at /ws with the query preserved.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid monitor URL: %s", raw)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Watch connects to a hub and calls fn for every event. It returns nil
// when ctx is cancelled or the hub closes the feed normally.
func Watch(ctx context.Context, wsURL string, fn func(emulator.Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to monitor: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev emulator.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}
		fn(ev)
	}
}
