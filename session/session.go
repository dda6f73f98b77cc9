package session

import (
	"context"
	"time"
)

// Session holds metadata about a dashboard viewer's connection, stored in a
// shared store so any relay instance can tell which instance serves a viewer.
type Session struct {
	ViewerID    string    `json:"viewer_id"`
	InstanceID  string    `json:"instance_id"` // relay instance handling the connection
	ConnectedAt time.Time `json:"connected_at"`
}

// Store defines the interface for viewer session management.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error
	// Get retrieves a session by viewer ID; (nil, nil) when absent.
	Get(ctx context.Context, viewerID string) (*Session, error)
	// Delete removes a session.
	Delete(ctx context.Context, viewerID string) error
	// RefreshTTL extends the session's lifetime in the store.
	RefreshTTL(ctx context.Context, viewerID string) error
}
