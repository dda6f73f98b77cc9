package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"

	"github.com/saleemdev/careverse-hq-sub001/metrics"
)

const (
	redisMaxRetries     = 3
	redisInitialBackoff = 100 * time.Millisecond
	redisMaxBackoff     = 2 * time.Second
)

// RedisBroker implements MessageBroker over Redis pub/sub. The Redis client
// is shared with the caller and not closed here.
type RedisBroker struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
}

// NewRedisBroker creates a Redis-backed message broker.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends a message to the channel, retrying transient failures with
// exponential backoff.
func (b *RedisBroker) Publish(ctx context.Context, channel string, message Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("broker is closed")
	}
	b.mu.RUnlock()

	operation := func() error {
		return b.client.Publish(ctx, channel, message).Err()
	}

	backoffStrategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(redisInitialBackoff),
				backoff.WithMaxInterval(redisMaxBackoff),
			),
			redisMaxRetries,
		),
		ctx,
	)

	return backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		metrics.BrokerPublishRetries.WithLabelValues(b.Type()).Inc()
		log.Printf("Retrying Redis publish to %s: %v (next attempt in %s)", channel, err, d)
	})
}

// Subscribe starts listening on the channel. Messages that fail to decode are
// logged and skipped.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, fmt.Errorf("broker is closed")
	}
	b.mu.RUnlock()

	pubsub := b.client.Subscribe(ctx, channel)

	// Force the subscription onto the wire before returning so callers do
	// not miss messages published right after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	messages := make(chan Message, 100)
	go func() {
		defer close(messages)
		defer pubsub.Close()

		redisCh := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var message Message
				if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
					log.Printf("Message decode error on %s: %v", channel, err)
					continue
				}
				select {
				case messages <- message:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messages, nil
}

// Close marks the broker closed. The underlying Redis client belongs to the
// caller and stays open.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *RedisBroker) Type() string {
	return "redis"
}
