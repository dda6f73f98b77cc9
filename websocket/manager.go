package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saleemdev/careverse-hq-sub001/metrics"
	"github.com/saleemdev/careverse-hq-sub001/session"
)

// ViewerManager manages the dashboard viewers connected to this relay
// instance. It coordinates the in-memory connection map with the shared
// session store.
type ViewerManager struct {
	viewers      sync.Map // viewer ID -> *ViewerSession
	wg           sync.WaitGroup
	sessionStore session.Store
	instanceID   string
}

// NewViewerManager creates a new viewer manager.
func NewViewerManager(store session.Store, instanceID string) *ViewerManager {
	return &ViewerManager{
		sessionStore: store,
		instanceID:   instanceID,
	}
}

// AddViewer records the session in the shared store and keeps the live
// connection in-memory.
func (m *ViewerManager) AddViewer(ctx context.Context, vs *ViewerSession) error {
	info := &session.Session{
		ViewerID:    vs.ID,
		InstanceID:  m.instanceID,
		ConnectedAt: time.Now(),
	}
	if err := m.sessionStore.Create(ctx, info); err != nil {
		log.Printf("Failed to create session in store for viewer %s: %v", vs.ID, err)
		return err
	}

	m.viewers.Store(vs.ID, vs)
	metrics.ViewerConnectionsActive.Inc()
	metrics.ViewerConnectionsTotal.Inc()
	log.Printf("Viewer %s connected to instance %s", vs.ID, m.instanceID)
	return nil
}

// RemoveViewer drops the in-memory connection and the stored session.
func (m *ViewerManager) RemoveViewer(viewerID string) {
	m.viewers.Delete(viewerID)

	// The originating request context may already be cancelled.
	if err := m.sessionStore.Delete(context.Background(), viewerID); err != nil {
		log.Printf("Failed to delete session from store for viewer %s: %v", viewerID, err)
	}
	metrics.ViewerConnectionsActive.Dec()
	log.Printf("Viewer %s disconnected", viewerID)
}

// GetViewer retrieves a live viewer connection by ID.
func (m *ViewerManager) GetViewer(viewerID string) (*ViewerSession, bool) {
	if v, ok := m.viewers.Load(viewerID); ok {
		return v.(*ViewerSession), true
	}
	return nil, false
}

// Count returns the number of viewers connected to this instance.
func (m *ViewerManager) Count() int {
	n := 0
	m.viewers.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// RefreshSessionTTL extends the viewer's session in the shared store.
func (m *ViewerManager) RefreshSessionTTL(ctx context.Context, viewerID string) {
	if err := m.sessionStore.RefreshTTL(ctx, viewerID); err != nil {
		// Transient store failures are not a reason to disconnect a viewer.
		log.Printf("Failed to refresh session TTL for viewer %s: %v", viewerID, err)
	}
}

// Broadcast pushes an update frame to every viewer that selected the channel
// and is allowed to view it. Viewers with dead connections are removed.
func (m *ViewerManager) Broadcast(channel string, payload any) {
	frame := map[string]any{"event": channel, "data": payload}

	m.viewers.Range(func(key, value interface{}) bool {
		viewerID := key.(string)
		vs := value.(*ViewerSession)

		if !vs.WantsChannel(channel) || !vs.CanAccess("view", channel) {
			return true
		}
		if err := vs.SafeWriteJSON(frame); err != nil {
			log.Printf("Failed to push %s update to viewer %s: %v", channel, viewerID, err)
			vs.Close(websocket.CloseInternalServerErr, "Failed to send update")
			m.RemoveViewer(viewerID)
			return true
		}
		metrics.ViewerMessagesSent.Inc()
		return true
	})
}

// IncreaseWaitGroup increases the in-flight operation counter.
func (m *ViewerManager) IncreaseWaitGroup() {
	m.wg.Add(1)
}

// DecreaseWaitGroup decreases the in-flight operation counter.
func (m *ViewerManager) DecreaseWaitGroup() {
	m.wg.Done()
}

// WaitForCompletion waits for in-flight operations to finish.
func (m *ViewerManager) WaitForCompletion() {
	m.wg.Wait()
}

// CloseAllConnections closes every viewer connection with a reason.
func (m *ViewerManager) CloseAllConnections(reason string) {
	m.viewers.Range(func(key, value interface{}) bool {
		viewerID := key.(string)
		vs := value.(*ViewerSession)

		log.Printf("Closing connection for viewer %s: %s", viewerID, reason)
		vs.Close(websocket.CloseGoingAway, reason)
		m.RemoveViewer(viewerID)
		return true
	})
}
