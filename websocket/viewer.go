package websocket

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/saleemdev/careverse-hq-sub001/config"
)

const (
	writeRetryDelay = 200 * time.Millisecond
	writeMaxRetries = 3
)

// ViewerSession represents one connected dashboard viewer.
type ViewerSession struct {
	ID            string
	conn          *websocket.Conn
	ctx           context.Context
	cfg           *config.WebSocketConfig
	claims        *CustomClaims
	lastActivity  atomic.Int64
	pingTicker    *time.Ticker
	activityTimer *time.Timer
	cancel        context.CancelFunc
	mu            sync.Mutex

	channelMu sync.RWMutex
	channels  map[string]bool // update channels this viewer receives
}

// NewViewerSession creates a viewer session subscribed to the given channels.
func NewViewerSession(id string, conn *websocket.Conn, cfg *config.WebSocketConfig, claims *CustomClaims, channels []string) *ViewerSession {
	ctx, cancel := context.WithCancel(context.Background())
	vs := &ViewerSession{
		ID:       id,
		conn:     conn,
		cfg:      cfg,
		claims:   claims,
		cancel:   cancel,
		ctx:      ctx,
		channels: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		vs.channels[ch] = true
	}
	vs.lastActivity.Store(time.Now().Unix())
	return vs
}

// SafeWriteJSON writes data to the websocket with bounded retries.
func (s *ViewerSession) SafeWriteJSON(data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	operation := func() error {
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Duration(s.cfg.WriteTimeout) * time.Second))
		return s.conn.WriteJSON(data)
	}

	backoffStrategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(writeRetryDelay), writeMaxRetries),
		s.ctx,
	)

	return backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		log.Printf("Retrying write to viewer %s: %v (next attempt in %s)", s.ID, err, d)
	})
}

// WantsChannel reports whether the viewer currently receives the channel.
func (s *ViewerSession) WantsChannel(channel string) bool {
	s.channelMu.RLock()
	defer s.channelMu.RUnlock()
	return s.channels[channel]
}

// SetChannels replaces the viewer's channel selection.
func (s *ViewerSession) SetChannels(channels []string) {
	s.channelMu.Lock()
	defer s.channelMu.Unlock()
	s.channels = make(map[string]bool, len(channels))
	for _, ch := range channels {
		s.channels[ch] = true
	}
}

// CanAccess checks the viewer's JWT scopes against an action on a channel.
// Nil claims (auth disabled) allow everything. Scopes have the form
// "action:channel"; a trailing '*' in the channel part matches any suffix.
func (s *ViewerSession) CanAccess(action, channel string) bool {
	if s.claims == nil {
		return true
	}
	want := action + ":" + channel
	for _, scope := range s.claims.Scopes {
		if scope == want {
			return true
		}
		if strings.HasSuffix(scope, "*") {
			prefix := strings.TrimSuffix(scope, "*")
			if strings.HasPrefix(want, prefix) {
				return true
			}
		}
	}
	return false
}

// UpdateActivity records viewer activity and resets the inactivity timer.
// Only called for actual viewer messages, not pong responses.
func (s *ViewerSession) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity.Store(time.Now().Unix())

	if s.activityTimer != nil {
		s.activityTimer.Stop()
		s.activityTimer = time.AfterFunc(
			time.Duration(s.cfg.ActivityTimeout)*time.Second,
			s.onActivityTimeout,
		)
	}
}

// LastActivityTime returns the time of last activity.
func (s *ViewerSession) LastActivityTime() time.Time {
	return time.Unix(s.lastActivity.Load(), 0)
}

// StartTimers begins the inactivity timer and keepalive pings.
func (s *ViewerSession) StartTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activityTimer = time.AfterFunc(
		time.Duration(s.cfg.ActivityTimeout)*time.Second,
		s.onActivityTimeout,
	)

	s.pingTicker = time.NewTicker(
		time.Duration(s.cfg.PingInterval) * time.Second,
	)
	go s.pingLoop()
}

func (s *ViewerSession) pingLoop() {
	defer s.pingTicker.Stop()

	for {
		select {
		case <-s.pingTicker.C:
			if err := s.SendPing(); err != nil {
				log.Printf("Failed to send ping to viewer %s: %v", s.ID, err)
				s.Close(websocket.CloseInternalServerErr, "Ping failure")
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ViewerSession) onActivityTimeout() {
	log.Printf("Viewer %s timed out", s.ID)
	s.Close(websocket.ClosePolicyViolation, "Inactivity timeout")
}

// SendPing sends a websocket ping control message.
func (s *ViewerSession) SendPing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.WriteControl(
		websocket.PingMessage,
		[]byte{},
		time.Now().Add(time.Duration(s.cfg.WriteTimeout)*time.Second),
	)
}

// UpdateLastSeen updates only the timestamp (for pong responses); it does
// not reset the inactivity timer.
func (s *ViewerSession) UpdateLastSeen() {
	s.lastActivity.Store(time.Now().Unix())
}

// GetPongHandler returns a pong handler based on the keepalive setting.
func (s *ViewerSession) GetPongHandler() func(string) error {
	return func(string) error {
		if s.cfg.KeepAlive {
			s.UpdateActivity()
		} else {
			s.UpdateLastSeen()
		}
		return nil
	}
}

// Close closes the viewer connection.
func (s *ViewerSession) Close(code int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pingTicker != nil {
		s.pingTicker.Stop()
	}
	if s.activityTimer != nil {
		s.activityTimer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}

	writeTimeout := time.Duration(s.cfg.WriteTimeout) * time.Second
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeTimeout),
	)
	if err != nil {
		log.Printf("Error sending close message to viewer %s: %v", s.ID, err)
	}

	return s.conn.Close()
}
