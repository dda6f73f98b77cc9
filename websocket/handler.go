package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/saleemdev/careverse-hq-sub001/broker"
	"github.com/saleemdev/careverse-hq-sub001/config"
	"github.com/saleemdev/careverse-hq-sub001/dashboard"
	"github.com/saleemdev/careverse-hq-sub001/metrics"
)

// Upgrader for viewer connections
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SnapshotSource provides the current merged dashboard state, sent to every
// viewer on connect. Satisfied by *dashboard.Feed.
type SnapshotSource interface {
	Snapshot() map[string]map[string]any
}

// Handler manages viewer connections and routes merged updates to them.
type Handler struct {
	manager        *ViewerManager
	broker         broker.MessageBroker
	jwtValidator   *JWTValidator
	authConfig     *config.AuthConfig
	wsConfig       *config.WebSocketConfig
	snapshots      SnapshotSource
	updatesChannel string
}

// NewHandler creates a viewer-facing websocket handler.
func NewHandler(
	manager *ViewerManager,
	messageBroker broker.MessageBroker,
	jwtValidator *JWTValidator,
	authConfig *config.AuthConfig,
	wsConfig *config.WebSocketConfig,
	snapshots SnapshotSource,
	updatesChannel string,
) *Handler {
	return &Handler{
		manager:        manager,
		broker:         messageBroker,
		jwtValidator:   jwtValidator,
		authConfig:     authConfig,
		wsConfig:       wsConfig,
		snapshots:      snapshots,
		updatesChannel: updatesChannel,
	}
}

// viewerRequest is the only message shape viewers send: channel selection.
type viewerRequest struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// HandleViewer handles an incoming dashboard viewer connection.
func (h *Handler) HandleViewer(w http.ResponseWriter, r *http.Request) {
	var claims *CustomClaims
	var err error

	if h.authConfig.Enabled {
		if h.jwtValidator == nil {
			log.Printf("Auth Error: Auth is enabled but JWT validator is not initialized.")
			http.Error(w, "Internal server configuration error", http.StatusInternalServerError)
			return
		}

		tokenString := r.URL.Query().Get(h.authConfig.TokenQueryParam)
		if tokenString == "" {
			log.Printf("Auth Error: Missing token in request from %s", r.RemoteAddr)
			metrics.AuthFailures.WithLabelValues("missing_token").Inc()
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		claims, err = h.jwtValidator.ValidateToken(r.Context(), tokenString)
		if err != nil {
			log.Printf("Auth Error: Invalid token from %s. Reason: %v", r.RemoteAddr, err)
			metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}
		metrics.AuthSuccess.Inc()
	}

	if h.manager.Count() >= h.wsConfig.MaxConnections {
		http.Error(w, "Viewer limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Use the JWT subject as viewer ID when available.
	var viewerID string
	if claims != nil && claims.Subject != "" {
		viewerID = claims.Subject
	} else {
		viewerID = uuid.New().String()
	}

	vs := NewViewerSession(viewerID, conn, h.wsConfig, claims, dashboard.Channels)
	vs.StartTimers()

	if err := h.manager.AddViewer(r.Context(), vs); err != nil {
		conn.Close()
		return
	}
	defer h.manager.RemoveViewer(viewerID)
	conn.SetPongHandler(vs.GetPongHandler())
	conn.SetReadLimit(int64(h.wsConfig.MessageSizeLimit))

	// Prime the viewer with the current merged state so it can render
	// immediately instead of waiting for the next push.
	primer := map[string]any{
		"event":     "snapshot",
		"viewer_id": viewerID,
		"data":      h.snapshots.Snapshot(),
	}
	if err := vs.SafeWriteJSON(primer); err != nil {
		log.Printf("Failed to send snapshot to viewer %s: %v", viewerID, err)
		return // defer handles cleanup
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				log.Printf("Read error from viewer %s: %v", viewerID, err)
			}
			vs.Close(websocket.CloseNormalClosure, "Viewer disconnected")
			break
		}
		vs.UpdateActivity()
		h.manager.RefreshSessionTTL(r.Context(), viewerID)

		var req viewerRequest
		if err := json.Unmarshal(msg, &req); err != nil || req.Action == "" {
			continue
		}
		h.handleRequest(vs, req)
	}
}

// handleRequest applies a channel selection request, rejecting channels the
// viewer's scopes do not cover.
func (h *Handler) handleRequest(vs *ViewerSession, req viewerRequest) {
	if req.Action != "subscribe" {
		vs.SafeWriteJSON(map[string]string{
			"error":   "unknown_action",
			"details": fmt.Sprintf("action %q is not supported", req.Action),
		})
		return
	}

	allowed := make([]string, 0, len(req.Channels))
	for _, ch := range req.Channels {
		if !h.authConfig.Enabled || vs.CanAccess("view", ch) {
			allowed = append(allowed, ch)
			continue
		}
		log.Printf("Authorization DENIED for viewer %s: channel %q", vs.ID, ch)
		vs.SafeWriteJSON(map[string]string{
			"error":   "forbidden",
			"details": fmt.Sprintf("viewing channel %q not allowed", ch),
		})
	}
	vs.SetChannels(allowed)
}

// ListenForUpdates consumes merged dashboard updates from the broker and
// pushes them to this instance's viewers. Every relay instance receives
// every update, regardless of which instance produced the merge.
func (h *Handler) ListenForUpdates(ctx context.Context) {
	messageChan, err := h.broker.Subscribe(ctx, h.updatesChannel)
	if err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", h.updatesChannel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messageChan:
			if !ok {
				log.Println("Dashboard updates channel closed")
				return
			}
			h.manager.Broadcast(message.Channel, message.Data)
		}
	}
}
