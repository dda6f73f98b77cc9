package realtime

import "time"

// Handler processes the payload of a named realtime event.
type Handler func(payload any)

// Lifecycle event names every Transport implementation dispatches alongside
// application events.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
	EventError        = "error"
)

// ReasonClientTeardown is the disconnect reason reported when the client side
// tore the namespace down itself, as opposed to a network drop. Subscriptions
// do not survive this reason.
const ReasonClientTeardown = "client namespace disconnect"

// Transport is the bare bidirectional event-stream client the connection
// service drives. Implementations own their reconnection schedule; the
// service only observes it through the lifecycle events.
type Transport interface {
	// On registers handler for event, replacing any existing handler for the
	// same name. Transports support a single callback per event.
	On(event string, handler Handler)
	// Off removes the handler for event, if any.
	Off(event string)
	// Emit sends a named event with payload to the upstream.
	Emit(event string, payload any) error
	// Connect starts the connection attempt. It returns immediately; the
	// outcome is reported via the lifecycle events.
	Connect()
	// Reconnect triggers an immediate connection attempt, bypassing any
	// pending backoff wait. No-op while connected.
	Reconnect()
	// Close tears the connection down permanently.
	Close() error
}

// TransportConfig carries the connection parameters for a transport handle.
type TransportConfig struct {
	URL                  string
	Namespace            string
	CSRFToken            string
	CredentialCookie     string
	Transports           []string
	ReconnectInitial     time.Duration
	ReconnectMax         time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	PingInterval         time.Duration
}

// Dialer constructs a Transport for the given configuration. Tests inject
// fakes through this; production wiring uses DialWebSocket.
type Dialer func(cfg TransportConfig) (Transport, error)
