package realtime

import (
	"sync"

	"github.com/saleemdev/careverse-hq-sub001/metrics"
)

// subscription is one logical (event name, handler) binding. Bindings are
// held independently of the transport handle and reattached after reconnects.
type subscription struct {
	event   string
	token   uint64
	handler Handler
}

// Registry holds the authoritative set of logical subscriptions and keeps the
// transport-level handler registration consistent with it. It never retains
// the transport; callers pass the current handle into every operation.
type Registry struct {
	mu        sync.Mutex
	ordered   []*subscription // replay order
	byEvent   map[string]*subscription
	nextToken uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byEvent: make(map[string]*subscription),
	}
}

// Add registers handler for event on t, superseding any prior handler for the
// same event name. A superseded entry keeps its position in the replay order,
// matching overwrite semantics. Returns a token for targeted removal.
func (r *Registry) Add(t Transport, event string, handler Handler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextToken++
	sub := &subscription{event: event, token: r.nextToken, handler: handler}

	if prev, ok := r.byEvent[event]; ok {
		for i, s := range r.ordered {
			if s == prev {
				r.ordered[i] = sub
				break
			}
		}
	} else {
		r.ordered = append(r.ordered, sub)
	}
	r.byEvent[event] = sub

	attach(t, sub)
	metrics.ActiveSubscriptions.Set(float64(len(r.ordered)))
	return sub.token
}

// Remove detaches the transport-level listener for event unconditionally,
// then drops the matching registry entry. With a non-zero token only the
// registration carrying that exact token is dropped, so stale unsubscribe
// closures from superseded subscriptions cannot remove their successor.
func (r *Registry) Remove(t Transport, event string, token uint64) {
	if t != nil {
		t.Off(event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byEvent[event]
	if !ok {
		return
	}
	if token != 0 && cur.token != token {
		return
	}
	delete(r.byEvent, event)
	for i, s := range r.ordered {
		if s == cur {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	metrics.ActiveSubscriptions.Set(float64(len(r.ordered)))
}

// RemoveAll detaches every registered event from t and empties the registry.
// Used only on explicit teardown.
func (r *Registry) RemoveAll(t Transport) {
	r.mu.Lock()
	subs := r.ordered
	r.ordered = nil
	r.byEvent = make(map[string]*subscription)
	r.mu.Unlock()

	if t != nil {
		for _, sub := range subs {
			t.Off(sub.event)
		}
	}
	metrics.ActiveSubscriptions.Set(0)
}

// Replay reattaches every registration to t in replay order. Invoked after a
// reconnect so the new handle carries the same logical subscriptions. Events
// missed while disconnected are not backfilled.
func (r *Registry) Replay(t Transport) {
	r.mu.Lock()
	subs := append([]*subscription(nil), r.ordered...)
	r.mu.Unlock()

	for _, sub := range subs {
		attach(t, sub)
	}
	if len(subs) > 0 {
		metrics.SubscriptionReplays.Inc()
	}
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ordered)
}

// Events returns the registered event names in replay order.
func (r *Registry) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.ordered))
	for i, sub := range r.ordered {
		names[i] = sub.event
	}
	return names
}

// attach wires sub onto t, detaching any existing listener first to guard
// against duplicate dispatch.
func attach(t Transport, sub *subscription) {
	event := sub.event
	handler := sub.handler
	t.Off(event)
	t.On(event, func(payload any) {
		log.Printf("Realtime event received: %s", event)
		metrics.EventsReceived.WithLabelValues(event).Inc()
		handler(payload)
	})
}
