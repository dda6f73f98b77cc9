package broker

import (
	"context"
	"encoding/json"
)

// Message is the envelope relayed between instances: one merged aggregate
// snapshot for a logical update channel.
type Message struct {
	// Channel is the logical update channel the snapshot belongs to
	// (approval_update, budget_update, attendance_update, org_update).
	Channel string `json:"channel"`
	// InstanceID identifies the relay instance that produced the merge.
	InstanceID string `json:"instance_id"`
	// Data is the merged aggregate state after applying the update.
	Data map[string]any `json:"data"`
}

// MarshalBinary implements encoding.BinaryMarshaler so the message can be
// handed to Redis directly.
func (m Message) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Message) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, m)
}

// MessageBroker fans merged dashboard updates out across relay instances.
type MessageBroker interface {
	// Publish sends a message to the named channel.
	Publish(ctx context.Context, channel string, message Message) error
	// Subscribe starts listening on the named channel. The returned channel
	// closes when ctx is cancelled or the broker shuts down.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	// Close releases broker resources.
	Close() error
	// Type names the broker implementation, used as a metric label.
	Type() string
}
