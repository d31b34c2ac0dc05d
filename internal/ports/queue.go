package ports

import "context"

// Message is one delivery taken off the inbound queue together with the
// callbacks that settle it. Exactly one of Ack or Nack must be called.
type Message struct {
	RoutingKey string
	Body       []byte

	// Ack removes the message from the queue permanently.
	Ack func() error
	// Nack rejects the message; with requeue it is redelivered, otherwise dropped.
	Nack func(requeue bool) error
}

// MessageHandler processes one delivery. Implementations settle the message.
type MessageHandler func(ctx context.Context, msg Message)

// MessageConsumer feeds deliveries to a handler one at a time until ctx ends.
type MessageConsumer interface {
	Consume(ctx context.Context, handle MessageHandler) error
	Close() error
}

// Publisher sends an outbound message under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error
}
