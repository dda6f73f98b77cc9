package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/saleemdev/careverse-hq-sub001/broker"
	"github.com/saleemdev/careverse-hq-sub001/merge"
	"github.com/saleemdev/careverse-hq-sub001/metrics"
	"github.com/saleemdev/careverse-hq-sub001/realtime"
)

const publishTimeout = 5 * time.Second

// Subscriber is the subset of the realtime connection service the feed
// needs. Satisfied by *realtime.Service.
type Subscriber interface {
	Subscribe(event string, handler realtime.Handler) func()
}

// Feed subscribes to the dashboard update channels on the shared realtime
// connection, merges each partial push into per-channel aggregate state, and
// republishes the merged result on the message broker so every relay
// instance can push it to its connected viewers.
type Feed struct {
	source         Subscriber
	publisher      broker.MessageBroker // nil disables fan-out
	updatesChannel string
	instanceID     string

	mu      sync.RWMutex
	state   map[string]map[string]any // update channel -> merged aggregate
	unsubs  []func()
	started bool
}

// NewFeed creates a dashboard feed. publisher may be nil when fan-out is not
// wanted (tests, single-consumer tools).
func NewFeed(source Subscriber, publisher broker.MessageBroker, updatesChannel, instanceID string) *Feed {
	return &Feed{
		source:         source,
		publisher:      publisher,
		updatesChannel: updatesChannel,
		instanceID:     instanceID,
		state:          make(map[string]map[string]any),
	}
}

// Start subscribes every dashboard channel. Calling Start twice without an
// intervening Stop is a no-op.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	for _, ch := range Channels {
		channel := ch
		unsub := f.source.Subscribe(channel, func(payload any) {
			f.apply(channel, payload)
		})
		f.mu.Lock()
		f.unsubs = append(f.unsubs, unsub)
		f.mu.Unlock()
	}
	log.Printf("Dashboard feed subscribed to %d channels", len(Channels))
}

// Stop unsubscribes every channel. Merged state is retained so a restarted
// feed resumes from the last known aggregates.
func (f *Feed) Stop() {
	f.mu.Lock()
	unsubs := f.unsubs
	f.unsubs = nil
	f.started = false
	f.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Snapshot returns a copy of the merged aggregate state for every channel.
func (f *Feed) Snapshot() map[string]map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]map[string]any, len(f.state))
	for ch, agg := range f.state {
		out[ch] = copyAggregate(agg)
	}
	return out
}

// ChannelSnapshot returns a copy of the merged aggregate for one channel,
// nil if nothing has arrived yet.
func (f *Feed) ChannelSnapshot(channel string) map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()

	agg, ok := f.state[channel]
	if !ok {
		return nil
	}
	return copyAggregate(agg)
}

// apply folds one partial update into the channel's aggregate and publishes
// the merged result.
func (f *Feed) apply(channel string, payload any) {
	update, ok := payload.(map[string]any)
	if !ok {
		log.Printf("Ignoring non-object payload on %s (%T)", channel, payload)
		return
	}

	f.mu.Lock()
	merged := merge.Merge(f.state[channel], update)
	f.state[channel] = merged
	snapshot := copyAggregate(merged)
	f.mu.Unlock()

	metrics.MergesApplied.WithLabelValues(channel).Inc()

	if f.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := f.publisher.Publish(ctx, f.updatesChannel, broker.Message{
		Channel:    channel,
		InstanceID: f.instanceID,
		Data:       snapshot,
	})
	if err != nil {
		log.Printf("Failed to publish merged %s update: %v", channel, err)
		return
	}
	metrics.BrokerMessagesPublished.WithLabelValues(f.publisher.Type()).Inc()
}

// copyAggregate copies an aggregate down to the bucket level. Values inside
// buckets are treated as immutable once merged.
func copyAggregate(agg map[string]any) map[string]any {
	out := make(map[string]any, len(agg))
	for k, v := range agg {
		if bucket, ok := v.(map[string]any); ok {
			bucketCopy := make(map[string]any, len(bucket))
			for bk, bv := range bucket {
				bucketCopy[bk] = bv
			}
			out[k] = bucketCopy
			continue
		}
		out[k] = v
	}
	return out
}
