package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Emit while no connection is live.
var ErrNotConnected = errors.New("realtime transport is not connected")

// csrfHeader carries the cross-site-request-forgery token on the handshake.
const csrfHeader = "X-Frappe-CSRF-Token"

// frame is the JSON envelope used on the upstream event stream.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsTransport implements Transport over a WebSocket connection. It owns its
// reconnection schedule: exponential backoff between the configured initial
// and maximum delay, bounded by the configured attempt count. Reconnect()
// short-circuits a pending backoff wait and restarts an exhausted schedule.
type wsTransport struct {
	cfg TransportConfig

	mu       sync.Mutex
	handlers map[string]Handler
	conn     *websocket.Conn
	closed   bool

	writeMu sync.Mutex // serializes data writes on the active conn

	retryNow    chan struct{}
	done        chan struct{}
	connectOnce sync.Once
	wg          sync.WaitGroup
}

// DialWebSocket constructs the production Transport. The connection itself is
// only attempted once Connect is called.
func DialWebSocket(cfg TransportConfig) (Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if !containsTransport(cfg.Transports, "websocket") {
		// Long-polling is an upstream-server fallback; this client speaks
		// the persistent stream only.
		return nil, fmt.Errorf("no supported transport kind in %v", cfg.Transports)
	}
	return &wsTransport{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		retryNow: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

func containsTransport(kinds []string, want string) bool {
	for _, k := range kinds {
		if strings.EqualFold(k, want) {
			return true
		}
	}
	return false
}

func (t *wsTransport) On(event string, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = handler
}

func (t *wsTransport) Off(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, event)
}

func (t *wsTransport) Connect() {
	t.connectOnce.Do(func() {
		t.wg.Add(1)
		go t.run()
	})
}

func (t *wsTransport) Reconnect() {
	select {
	case t.retryNow <- struct{}{}:
	default:
		// A retry is already pending.
	}
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	close(t.done)
	if conn != nil {
		deadline := time.Now().Add(t.cfg.WriteTimeout)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client teardown"),
			deadline,
		)
		_ = conn.Close()
	}
	t.wg.Wait()
	return nil
}

// Emit sends a named event upstream.
func (t *wsTransport) Emit(event string, payload any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", event, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteJSON(frame{Event: event, Data: data})
}

// run is the connection loop: dial with backoff, serve the connection until
// it drops, then start over. Exits only on Close.
func (t *wsTransport) run() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		conn := t.dialWithRetry()
		if conn == nil {
			// Schedule exhausted or closing. An explicit Reconnect call
			// restarts the schedule from the initial delay.
			select {
			case <-t.done:
				return
			case <-t.retryNow:
				continue
			}
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.mu.Unlock()

		t.dispatch(EventConnect, nil)

		stopPing := make(chan struct{})
		t.wg.Add(1)
		go t.pingLoop(conn, stopPing)

		reason := t.readLoop(conn)
		close(stopPing)
		_ = conn.Close()

		t.mu.Lock()
		t.conn = nil
		closed := t.closed
		t.mu.Unlock()

		if closed {
			t.dispatch(EventDisconnect, ReasonClientTeardown)
			return
		}
		t.dispatch(EventDisconnect, reason)
	}
}

// dialWithRetry attempts the handshake up to MaxReconnectAttempts times with
// exponential backoff. Returns nil when the schedule is exhausted or the
// transport is closing.
func (t *wsTransport) dialWithRetry() *websocket.Conn {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(t.cfg.ReconnectInitial),
		backoff.WithMaxInterval(t.cfg.ReconnectMax),
		backoff.WithMaxElapsedTime(0),
	)

	for attempt := 0; attempt < t.cfg.MaxReconnectAttempts; attempt++ {
		conn, err := t.dialOnce()
		if err == nil {
			return conn
		}
		t.dispatch(EventConnectError, err.Error())

		wait := bo.NextBackOff()
		log.Printf("Upstream dial failed (attempt %d/%d): %v, retrying in %s",
			attempt+1, t.cfg.MaxReconnectAttempts, err, wait)

		select {
		case <-t.done:
			return nil
		case <-t.retryNow:
			// Skip the backoff wait.
		case <-time.After(wait):
		}
	}

	t.dispatch(EventError, "reconnection attempts exhausted")
	return nil
}

func (t *wsTransport) dialOnce() (*websocket.Conn, error) {
	header := http.Header{}
	if t.cfg.CSRFToken != "" {
		header.Set(csrfHeader, t.cfg.CSRFToken)
	}
	if t.cfg.CredentialCookie != "" {
		header.Set("Cookie", t.cfg.CredentialCookie)
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	endpoint := strings.TrimRight(t.cfg.URL, "/") + t.cfg.Namespace

	conn, resp, err := dialer.Dial(endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upstream handshake rejected (%s): %w", resp.Status, err)
		}
		return nil, err
	}
	return conn, nil
}

// readLoop consumes frames until the connection drops and returns the
// disconnect reason.
func (t *wsTransport) readLoop(conn *websocket.Conn) string {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "transport close"
			}
			return err.Error()
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("Dropping malformed upstream frame: %v", err)
			continue
		}
		if f.Event == "" {
			log.Println("Dropping upstream frame without event name")
			continue
		}

		var payload any
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &payload); err != nil {
				log.Printf("Dropping undecodable payload for %s: %v", f.Event, err)
				continue
			}
		}
		t.dispatch(f.Event, payload)
	}
}

func (t *wsTransport) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	defer t.wg.Done()

	interval := t.cfg.PingInterval
	if interval <= 0 {
		interval = 25 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// The read loop notices the dead connection; nothing else
				// to do here.
				log.Printf("Upstream ping failed: %v", err)
				return
			}
		}
	}
}

// dispatch runs the registered handler for event, if any. Handlers run on
// the transport's read goroutine to completion, so an unsubscribe issued
// afterwards can never race an in-flight dispatch.
func (t *wsTransport) dispatch(event string, payload any) {
	t.mu.Lock()
	handler := t.handlers[event]
	t.mu.Unlock()
	if handler != nil {
		handler(payload)
	}
}
