package queue

import (
	"context"
	"time"

	"mercator-hq/kate/pkg/service"
)

// Broker is a connection to a message broker that stores messages durably.
type Broker interface {
	// Declare makes sure queue exists. It is idempotent.
	Declare(ctx context.Context, queue string) error

	// Publish sends data to queue and returns once the broker confirmed
	// the write. msgID is stable across retries of the same message.
	Publish(ctx context.Context, queue, msgID string, data []byte) error

	// Close releases the connection.
	Close() error
}

// Dialer opens a broker connection for a service's message queue settings.
type Dialer interface {
	Dial(ctx context.Context, mq *service.MessageQueue) (Broker, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, mq *service.MessageQueue) (Broker, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, mq *service.MessageQueue) (Broker, error) {
	return f(ctx, mq)
}

// Options holds connection settings shared by every broker connection.
type Options struct {
	// ConnectTimeout bounds the initial connection.
	// Default: 5s
	ConnectTimeout time.Duration

	// ReconnectWait is the delay between reconnect attempts.
	// Default: 2s
	ReconnectWait time.Duration

	// StreamPrefix prefixes the durable stream created per queue.
	// Default: "KATE"
	StreamPrefix string

	// ClientName identifies the gateway to the broker.
	// Default: "kate"
	ClientName string
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.StreamPrefix == "" {
		o.StreamPrefix = "KATE"
	}
	if o.ClientName == "" {
		o.ClientName = "kate"
	}
	return o
}
