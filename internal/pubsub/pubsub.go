// Package pubsub defines the process-internal event bus used to announce
// room and client lifecycle changes without coupling the routing core to
// its observers.
package pubsub

import "context"

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g.
	// "chat.room.expired").
	Topic string
	// ClientID identifies the client the event concerns, when applicable.
	ClientID string
	// Payload contains the raw event data, usually JSON.
	Payload []byte
	// Metadata carries arbitrary key-value context (timestamps, reasons).
	Metadata map[string]string
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe starts listening on the topic, processing messages with
	// the handler in the background. It returns once the subscription is
	// active.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
