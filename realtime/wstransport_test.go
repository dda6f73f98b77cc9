package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsTestConfig(serverURL string) TransportConfig {
	return TransportConfig{
		URL:                  "ws" + strings.TrimPrefix(serverURL, "http"),
		Namespace:            "/clinic-hq.test",
		CSRFToken:            "test-csrf",
		Transports:           []string{"websocket"},
		ReconnectInitial:     10 * time.Millisecond,
		ReconnectMax:         50 * time.Millisecond,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     2 * time.Second,
		WriteTimeout:         2 * time.Second,
		PingInterval:         time.Second,
	}
}

func awaitSignal(t *testing.T, ch <-chan any, what string) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

func TestDialWebSocketValidation(t *testing.T) {
	_, err := DialWebSocket(TransportConfig{Transports: []string{"websocket"}})
	assert.Error(t, err)

	_, err = DialWebSocket(TransportConfig{URL: "wss://erp.test", Transports: []string{"polling"}})
	assert.Error(t, err)

	_, err = DialWebSocket(TransportConfig{URL: "wss://erp.test", Transports: []string{"polling", "WebSocket"}})
	assert.NoError(t, err)
}

func TestWSTransportConnectAndDispatch(t *testing.T) {
	var gotPath, gotCSRF atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotCSRF.Store(r.Header.Get("X-Frappe-CSRF-Token"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{
			"event": "approval_update",
			"data":  map[string]any{"name": "PO-0042", "status": "Approved"},
		})
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr, err := DialWebSocket(wsTestConfig(srv.URL))
	require.NoError(t, err)

	connected := make(chan any, 1)
	payloads := make(chan any, 1)
	tr.On(EventConnect, func(p any) { connected <- p })
	tr.On("approval_update", func(p any) { payloads <- p })

	tr.Connect()
	awaitSignal(t, connected, "connect event")

	payload := awaitSignal(t, payloads, "approval_update payload")
	assert.Equal(t, map[string]any{"name": "PO-0042", "status": "Approved"}, payload)

	assert.Equal(t, "/clinic-hq.test", gotPath.Load())
	assert.Equal(t, "test-csrf", gotCSRF.Load())

	require.NoError(t, tr.Close())
}

func TestWSTransportReconnectsAfterServerDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if conns.Add(1) == 1 {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr, err := DialWebSocket(wsTestConfig(srv.URL))
	require.NoError(t, err)

	connected := make(chan any, 4)
	disconnected := make(chan any, 4)
	tr.On(EventConnect, func(p any) { connected <- p })
	tr.On(EventDisconnect, func(p any) { disconnected <- p })

	tr.Connect()
	awaitSignal(t, connected, "first connect")
	reason := awaitSignal(t, disconnected, "disconnect after server drop")
	assert.NotEqual(t, ReasonClientTeardown, reason)
	awaitSignal(t, connected, "reconnect")

	require.NoError(t, tr.Close())
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestWSTransportCloseReportsClientTeardown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr, err := DialWebSocket(wsTestConfig(srv.URL))
	require.NoError(t, err)

	connected := make(chan any, 1)
	disconnected := make(chan any, 1)
	tr.On(EventConnect, func(p any) { connected <- p })
	tr.On(EventDisconnect, func(p any) { disconnected <- p })

	tr.Connect()
	awaitSignal(t, connected, "connect")

	require.NoError(t, tr.Close())
	assert.Equal(t, ReasonClientTeardown, awaitSignal(t, disconnected, "teardown reason"))

	// Close is idempotent.
	require.NoError(t, tr.Close())
}

func TestWSTransportEmitBeforeConnect(t *testing.T) {
	tr, err := DialWebSocket(TransportConfig{URL: "wss://erp.test", Transports: []string{"websocket"}})
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Emit("ping", nil), ErrNotConnected)
}

func TestWSTransportEmitRoundTrip(t *testing.T) {
	frames := make(chan frame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var f frame
		if err := conn.ReadJSON(&f); err == nil {
			frames <- f
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	tr, err := DialWebSocket(wsTestConfig(srv.URL))
	require.NoError(t, err)

	connected := make(chan any, 1)
	tr.On(EventConnect, func(p any) { connected <- p })
	tr.Connect()
	awaitSignal(t, connected, "connect")

	require.NoError(t, tr.Emit("doc_subscribe", map[string]any{"doctype": "Purchase Order"}))

	select {
	case f := <-frames:
		assert.Equal(t, "doc_subscribe", f.Event)
		assert.JSONEq(t, `{"doctype":"Purchase Order"}`, string(f.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for emitted frame")
	}

	require.NoError(t, tr.Close())
}

func TestWSTransportExhaustsScheduleThenManualRetry(t *testing.T) {
	// Nothing is listening on this address.
	cfg := wsTestConfig("http://127.0.0.1:1")
	cfg.MaxReconnectAttempts = 2
	cfg.HandshakeTimeout = 200 * time.Millisecond

	tr, err := DialWebSocket(cfg)
	require.NoError(t, err)
	defer tr.Close()

	connectErrors := make(chan any, 8)
	exhausted := make(chan any, 1)
	tr.On(EventConnectError, func(p any) { connectErrors <- p })
	tr.On(EventError, func(p any) { exhausted <- p })

	tr.Connect()
	awaitSignal(t, connectErrors, "first connect error")
	msg := awaitSignal(t, exhausted, "exhaustion signal")
	assert.Equal(t, "reconnection attempts exhausted", msg)

	// A manual retry restarts the schedule and fails again.
	tr.Reconnect()
	awaitSignal(t, connectErrors, "connect error after manual retry")
}
