// Package connection owns the single push connection: dial, liveness,
// keepalive and the send path. At most one live connection per session.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/mkrier/chatsync/internal/wire"
)

var (
	// ErrNotLive is returned when a send is attempted without an open
	// connection. Sends are refused, never queued.
	ErrNotLive = errors.New("internal/connection: connection is not live")

	// ErrRateLimited is returned when the outbound limiter refuses a send.
	ErrRateLimited = errors.New("internal/connection: send rate limit exceeded")
)

const (
	writeTimeout      = 10 * time.Second
	keepaliveInterval = 54 * time.Second
)

// Manager holds the transport handle. All sends go through Send, which is
// gated on liveness; reads are pumped by Listen.
type Manager struct {
	baseURL    string
	header     http.Header
	httpClient *http.Client

	mu      sync.Mutex
	conn    *websocket.Conn
	open    bool
	stopper context.CancelFunc

	sendLim *rate.Limiter
}

// NewManager returns a manager that will dial the websocket endpoint
// derived from the HTTP base URL of the backend.
func NewManager(baseURL string) *Manager {
	return &Manager{
		baseURL:    baseURL,
		header:     http.Header{},
		httpClient: http.DefaultClient,
	}
}

// SetAuthToken attaches a bearer token to the websocket handshake.
func (m *Manager) SetAuthToken(token string) {
	m.header.Set("Authorization", "Bearer "+token)
}

// SetSendLimiter caps outbound frames at requests per window.
func (m *Manager) SetSendLimiter(requests int, window time.Duration) {
	m.sendLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

// websocketURL maps the API base URL to the push endpoint for username:
// http becomes ws, https becomes wss, path /ws/{username}.
func websocketURL(base, username string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("internal/connection: bad base URL %q: %w", base, err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/" + username

	return u.String(), nil
}

// Connect dials the push endpoint for username. It is a no-op when a
// connection is already live, whoever it was opened for.
func (m *Manager) Connect(ctx context.Context, username string) error {
	m.mu.Lock()
	if m.open {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	wsURL, err := websocketURL(m.baseURL, username)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: m.httpClient,
		HTTPHeader: m.header,
	})
	if err != nil {
		return fmt.Errorf("internal/connection: failed to dial %s: %w", wsURL, err)
	}

	keepaliveCtx, stop := context.WithCancel(context.Background())

	m.mu.Lock()
	m.conn = conn
	m.open = true
	m.stopper = stop
	m.mu.Unlock()

	go m.keepalive(keepaliveCtx, conn)

	log.Printf("push connection opened for user %s", username)
	return nil
}

// keepalive pings the server on a ticker. Firewalls and proxies invalidate
// idle connections, so we simulate traffic within a set deadline; the first
// failed ping marks the connection dead.
func (m *Manager) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to send ping signal",
					"error", err)
				m.markClosed(conn)
				return
			}
		}
	}
}

// IsLive reports whether a transport exists and is open at the instant of
// the check. Every send path is gated on this.
func (m *Manager) IsLive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.open
}

// Send encodes and writes one command frame. A send while not live is
// refused with ErrNotLive; nothing is buffered or retried.
func (m *Manager) Send(ctx context.Context, operation string, data any) error {
	m.mu.Lock()
	conn, open := m.conn, m.open
	m.mu.Unlock()

	if conn == nil || !open {
		slog.WarnContext(ctx, "refusing to send on a dead connection",
			"operation", operation)
		return ErrNotLive
	}

	if m.sendLim != nil && !m.sendLim.Allow() {
		log.Printf("dropping %s frame - send rate limit exceeded", operation)
		return ErrRateLimited
	}

	p, err := wire.Encode(operation, data)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, p); err != nil {
		return fmt.Errorf("internal/connection: failed to write %s frame: %w", operation, err)
	}

	return nil
}

// Listen pumps inbound frames to handle until the connection closes or ctx
// is cancelled. Frames arrive strictly in order; handle is called inline so
// no reordering or batching happens here.
func (m *Manager) Listen(ctx context.Context, handle func(context.Context, []byte)) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return
	}

	defer func() {
		m.markClosed(conn)
		conn.CloseNow()
	}()

	for {
		msgType, p, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				log.Printf("%v", err)
			}
			return
		}

		// The protocol is JSON text frames only.
		if msgType != websocket.MessageText {
			continue
		}

		handle(ctx, p)
	}
}

// Disconnect closes the transport if open. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn, open := m.conn, m.open
	stop := m.stopper
	m.conn = nil
	m.open = false
	m.stopper = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if conn != nil && open {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		log.Println("push connection closed")
	}
}

// markClosed records that conn died. A stale pump or keepalive finishing
// after a reconnect must not touch the replacement connection, so the
// caller identifies which conn it owns.
func (m *Manager) markClosed(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	stop := m.stopper
	m.open = false
	m.stopper = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
}
