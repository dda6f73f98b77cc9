package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/saleemdev/careverse-hq-sub001/broker"
	"github.com/saleemdev/careverse-hq-sub001/config"
	"github.com/saleemdev/careverse-hq-sub001/dashboard"
	"github.com/saleemdev/careverse-hq-sub001/realtime"
	"github.com/saleemdev/careverse-hq-sub001/websocket"
)

// Server is the HTTP front of the relay: viewer websocket endpoint, a JSON
// snapshot endpoint for initial page loads, and a health probe.
type Server struct {
	httpServer *http.Server
	realtime   *realtime.Service
	feed       *dashboard.Feed
	manager    *websocket.ViewerManager
}

// NewServer wires the HTTP routes.
func NewServer(
	addr string,
	cfg config.ServerConfig,
	viewerHandler http.HandlerFunc,
	rt *realtime.Service,
	feed *dashboard.Feed,
	manager *websocket.ViewerManager,
) *Server {
	s := &Server{
		realtime: rt,
		feed:     feed,
		manager:  manager,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", viewerHandler)
	mux.HandleFunc("/api/dashboard", s.handleSnapshot)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
	return s
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

// handleSnapshot serves the current merged dashboard state, so page loads do
// not have to wait for the first realtime push.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.feed.Snapshot()); err != nil {
		log.Printf("Failed to encode dashboard snapshot: %v", err)
	}
}

// handleHealth reports process liveness plus the upstream connection state
// for the dashboard's connection banner.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":                 "ok",
		"upstream_connected":     s.realtime.IsConnected(),
		"upstream_connecting":    s.realtime.IsConnecting(),
		"connection_error":       s.realtime.ConnectionError(),
		"last_disconnect_reason": s.realtime.LastDisconnectReason(),
		"viewers":                s.manager.Count(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("Failed to encode health status: %v", err)
	}
}

// Shutdown drains viewers, stops the feed and upstream connection, closes
// the broker and then the HTTP listener.
func (s *Server) Shutdown(ctx context.Context, messageBroker broker.MessageBroker) {
	log.Println("Shutting down relay server")

	s.manager.CloseAllConnections("Server shutting down")
	s.manager.WaitForCompletion()

	s.feed.Stop()
	s.realtime.Disconnect()

	if err := messageBroker.Close(); err != nil {
		log.Printf("Error closing message broker: %v", err)
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
