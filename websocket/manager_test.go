package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleemdev/careverse-hq-sub001/session"
)

// fakeStore is an in-memory session.Store.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	refresh  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*session.Session),
		refresh:  make(map[string]int),
	}
}

func (s *fakeStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ViewerID] = sess
	return nil
}

func (s *fakeStore) Get(_ context.Context, viewerID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[viewerID], nil
}

func (s *fakeStore) Delete(_ context.Context, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, viewerID)
	return nil
}

func (s *fakeStore) RefreshTTL(_ context.Context, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[viewerID]++
	return nil
}

func (s *fakeStore) has(viewerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[viewerID]
	return ok
}

// dialTestViewer opens a real websocket pair. The manager writes on the
// server-side conn; the test reads pushed frames off the client side.
func dialTestViewer(t *testing.T) (server *websocket.Conn, received <-chan map[string]any, cleanup func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	serverConn := <-conns

	frames := make(chan map[string]any, 8)
	go func() {
		for {
			var f map[string]any
			if err := client.ReadJSON(&f); err != nil {
				close(frames)
				return
			}
			frames <- f
		}
	}()

	return serverConn, frames, func() {
		client.Close()
		serverConn.Close()
		srv.Close()
	}
}

func TestManagerAddGetRemoveViewer(t *testing.T) {
	store := newFakeStore()
	mgr := NewViewerManager(store, "inst-1")

	vs := NewViewerSession("viewer-1", nil, testWSConfig(), nil, []string{"approval_update"})
	require.NoError(t, mgr.AddViewer(context.Background(), vs))

	assert.Equal(t, 1, mgr.Count())
	assert.True(t, store.has("viewer-1"))

	got, ok := mgr.GetViewer("viewer-1")
	require.True(t, ok)
	assert.Equal(t, "viewer-1", got.ID)

	mgr.RefreshSessionTTL(context.Background(), "viewer-1")
	assert.Equal(t, 1, store.refresh["viewer-1"])

	mgr.RemoveViewer("viewer-1")
	assert.Zero(t, mgr.Count())
	assert.False(t, store.has("viewer-1"))
	_, ok = mgr.GetViewer("viewer-1")
	assert.False(t, ok)
}

func TestManagerBroadcastFiltersByChannelAndScope(t *testing.T) {
	store := newFakeStore()
	mgr := NewViewerManager(store, "inst-1")

	wantedConn, wantedFrames, cleanupWanted := dialTestViewer(t)
	defer cleanupWanted()

	// This viewer selected the channel and holds a matching scope.
	allowed := NewViewerSession("allowed", wantedConn, testWSConfig(),
		&CustomClaims{Scopes: []string{"view:budget_update"}}, []string{"budget_update"})
	require.NoError(t, mgr.AddViewer(context.Background(), allowed))

	// This viewer selected the channel but lacks the scope; no conn needed
	// because the scope check runs before any write.
	denied := NewViewerSession("denied", nil, testWSConfig(),
		&CustomClaims{Scopes: []string{"view:org_update"}}, []string{"budget_update"})
	require.NoError(t, mgr.AddViewer(context.Background(), denied))

	// This viewer never selected the channel.
	uninterested := NewViewerSession("uninterested", nil, testWSConfig(),
		nil, []string{"approval_update"})
	require.NoError(t, mgr.AddViewer(context.Background(), uninterested))

	mgr.Broadcast("budget_update", map[string]any{"spend": map[string]any{"mtd": 1000.0}})

	select {
	case f := <-wantedFrames:
		assert.Equal(t, "budget_update", f["event"])
	case <-time.After(5 * time.Second):
		t.Fatal("allowed viewer never received the broadcast")
	}

	// All three viewers are still connected; filtering is not an error.
	assert.Equal(t, 3, mgr.Count())
}
