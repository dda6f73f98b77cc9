package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/saleemdev/careverse-hq-sub001/config"
	"github.com/saleemdev/careverse-hq-sub001/metrics"
)

// Config carries everything the connection service needs at construction
// time. Nothing is read from ambient globals; main resolves configuration
// once and passes it in.
type Config struct {
	Site     config.SiteConfig
	Upstream config.UpstreamConfig
}

// Service owns the single shared transport connection to the ERP realtime
// endpoint and the subscription registry multiplexed over it. One instance
// per process, passed by reference to consumers.
//
// Connection failures are never fatal: they are recorded in state and
// surfaced through the accessors for the presentation layer to display. No
// public operation panics or returns a connection error.
type Service struct {
	cfg  Config
	dial Dialer

	mu                   sync.Mutex
	transport            Transport
	connected            bool
	connecting           bool
	connectionError      string
	lastDisconnectReason string

	registry *Registry
}

// NewService creates a connection service. A nil dialer selects the
// production WebSocket transport.
func NewService(cfg Config, dial Dialer) *Service {
	if dial == nil {
		dial = DialWebSocket
	}
	return &Service{
		cfg:      cfg,
		dial:     dial,
		registry: NewRegistry(),
	}
}

// Initialize establishes the shared transport connection. It is a logged
// no-op when a connection attempt is already in flight or live. The four
// lifecycle handlers are attached before the connection counts as
// initialized, and isConnecting is set synchronously on call.
func (s *Service) Initialize() {
	s.mu.Lock()
	if s.transport != nil || s.connecting {
		s.mu.Unlock()
		log.Println("Realtime connection already initialized, skipping")
		return
	}
	s.connecting = true
	s.connectionError = ""
	s.mu.Unlock()

	site := ResolveSiteName(s.cfg.Site, s.cfg.Upstream.URL)
	tcfg := TransportConfig{
		URL:                  s.cfg.Upstream.URL,
		Namespace:            Namespace(site),
		CSRFToken:            s.cfg.Upstream.CSRFToken,
		CredentialCookie:     s.cfg.Upstream.CredentialCookie,
		Transports:           s.cfg.Upstream.Transports,
		ReconnectInitial:     time.Duration(s.cfg.Upstream.ReconnectInitialMs) * time.Millisecond,
		ReconnectMax:         time.Duration(s.cfg.Upstream.ReconnectMaxMs) * time.Millisecond,
		MaxReconnectAttempts: s.cfg.Upstream.MaxReconnectAttempts,
		HandshakeTimeout:     time.Duration(s.cfg.Upstream.HandshakeTimeout) * time.Second,
		WriteTimeout:         time.Duration(s.cfg.Upstream.WriteTimeout) * time.Second,
		PingInterval:         time.Duration(s.cfg.Upstream.PingInterval) * time.Second,
	}

	t, err := s.dial(tcfg)
	if err != nil {
		s.mu.Lock()
		s.connecting = false
		s.connectionError = err.Error()
		s.mu.Unlock()
		log.Printf("Failed to initialize realtime transport: %v", err)
		return
	}

	t.On(EventConnect, s.onConnect)
	t.On(EventConnectError, s.onConnectError)
	t.On(EventDisconnect, s.onDisconnect)
	t.On(EventError, s.onError)

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	log.Printf("Realtime transport initialized for namespace %s", tcfg.Namespace)
	t.Connect()
}

// Disconnect tears the connection down and discards all subscriptions. A
// fresh Initialize starts clean. No-op without a live handle.
func (s *Service) Disconnect() {
	s.mu.Lock()
	t := s.transport
	if t == nil {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.connected = false
	s.connecting = false
	s.mu.Unlock()

	s.registry.RemoveAll(t)
	if err := t.Close(); err != nil {
		log.Printf("Error closing realtime transport: %v", err)
	}
	metrics.UpstreamConnected.Set(0)
	log.Println("Realtime connection closed")
}

// Reconnect forces an immediate connection attempt. Without a handle it
// delegates to Initialize; while connected it is a logged no-op; otherwise it
// bypasses the transport's pending backoff wait.
func (s *Service) Reconnect() {
	s.mu.Lock()
	t := s.transport
	connected := s.connected
	s.mu.Unlock()

	if t == nil {
		s.Initialize()
		return
	}
	if connected {
		log.Println("Realtime connection already live, skipping reconnect")
		return
	}
	t.Reconnect()
}

// Subscribe binds handler to event on the shared connection and returns the
// matching unsubscribe closure. Subscribing before Initialize (or after
// Disconnect) degrades to a warning and a no-op closure; the handler is never
// invoked. A later Subscribe for the same event name supersedes the earlier
// handler.
func (s *Service) Subscribe(event string, handler Handler) func() {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	if t == nil {
		log.Printf("Cannot subscribe to %q: realtime connection not initialized", event)
		return func() {}
	}

	token := s.registry.Add(t, event, handler)
	return func() {
		s.unsubscribe(event, token)
	}
}

// Unsubscribe removes every registration for event.
func (s *Service) Unsubscribe(event string) {
	s.unsubscribe(event, 0)
}

func (s *Service) unsubscribe(event string, token uint64) {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	s.registry.Remove(t, event, token)
}

// IsConnected reports whether the transport connection is live.
func (s *Service) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsConnecting reports whether a connection attempt is in flight.
func (s *Service) IsConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connecting
}

// ConnectionError returns the most recent transport error message, empty
// while healthy.
func (s *Service) ConnectionError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionError
}

// LastDisconnectReason returns the human-readable reason of the most recent
// disconnect, empty while connected.
func (s *Service) LastDisconnectReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDisconnectReason
}

// SubscriptionCount returns the number of live logical subscriptions.
func (s *Service) SubscriptionCount() int {
	return s.registry.Len()
}

func (s *Service) onConnect(_ any) {
	s.mu.Lock()
	s.connected = true
	s.connecting = false
	s.connectionError = ""
	s.lastDisconnectReason = ""
	t := s.transport
	s.mu.Unlock()

	metrics.UpstreamConnects.Inc()
	metrics.UpstreamConnected.Set(1)

	if t == nil {
		// Torn down while the connect event was in flight.
		return
	}
	if n := s.registry.Len(); n > 0 {
		s.registry.Replay(t)
		log.Printf("Replayed %d realtime subscription(s) onto new handle", n)
	}
}

func (s *Service) onConnectError(payload any) {
	msg := payloadMessage(payload)
	s.mu.Lock()
	s.connecting = false
	s.connectionError = msg
	s.mu.Unlock()

	metrics.UpstreamConnectErrors.Inc()
	log.Printf("Realtime connect error: %s", msg)
}

func (s *Service) onDisconnect(payload any) {
	reason := payloadMessage(payload)
	s.mu.Lock()
	s.connected = false
	s.lastDisconnectReason = reason
	t := s.transport
	s.mu.Unlock()

	metrics.UpstreamConnected.Set(0)
	metrics.UpstreamDisconnects.Inc()
	log.Printf("Realtime connection lost: %s", reason)

	// Subscriptions persist for replay on reconnect unless the client side
	// tore the namespace down itself.
	if reason == ReasonClientTeardown {
		s.registry.RemoveAll(t)
	}
}

func (s *Service) onError(payload any) {
	msg := payloadMessage(payload)
	s.mu.Lock()
	s.connectionError = msg
	s.mu.Unlock()
	log.Printf("Realtime transport error: %s", msg)
}

func payloadMessage(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}
