// Package publisher defines how archived records are announced to
// downstream consumers. Implementations live in the memory and pubsub
// subpackages.
package publisher

import "context"

// Publisher sends a JSON-encoded payload to a named topic and returns the
// broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
