package realtime

import (
	"sync"

	"github.com/saleemdev/careverse-hq-sub001/config"
)

// fakeTransport records transport-level interactions and lets tests push
// events as if the server emitted them.
type fakeTransport struct {
	mu             sync.Mutex
	handlers       map[string]Handler
	onCalls        map[string]int
	offCalls       map[string]int
	connectCalls   int
	reconnectCalls int
	closeCalls     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]Handler),
		onCalls:  make(map[string]int),
		offCalls: make(map[string]int),
	}
}

func (f *fakeTransport) On(event string, handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = handler
	f.onCalls[event]++
}

func (f *fakeTransport) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
	f.offCalls[event]++
}

func (f *fakeTransport) Emit(string, any) error { return nil }

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
}

func (f *fakeTransport) Reconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnectCalls++
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// fire dispatches an event the way the transport's read loop would.
func (f *fakeTransport) fire(event string, payload any) {
	f.mu.Lock()
	handler := f.handlers[event]
	f.mu.Unlock()
	if handler != nil {
		handler(payload)
	}
}

func (f *fakeTransport) hasHandler(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[event] != nil
}

func (f *fakeTransport) attachCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onCalls[event]
}

// fakeDialer counts transport constructions.
type fakeDialer struct {
	mu         sync.Mutex
	calls      int
	err        error
	transports []*fakeTransport
}

func (d *fakeDialer) dial(TransportConfig) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func testConfig() Config {
	return Config{
		Site: config.SiteConfig{BootSiteName: "clinic-hq.test"},
		Upstream: config.UpstreamConfig{
			URL:        "wss://erp.clinic-hq.test/socket.io",
			Transports: []string{"websocket"},
		},
	}
}
