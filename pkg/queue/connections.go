package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"mercator-hq/kate/pkg/service"
)

// Connections holds one broker connection per service. Connections are
// dialed on first use and kept until the service is dropped.
type Connections struct {
	dialer Dialer
	logger *slog.Logger
	group  singleflight.Group

	mu     sync.Mutex
	conns  map[string]Broker
	closed bool
}

// NewConnections creates an empty connection set.
func NewConnections(dialer Dialer) *Connections {
	return &Connections{
		dialer: dialer,
		logger: slog.Default().With("component", "queue.connections"),
		conns:  make(map[string]Broker),
	}
}

// Get returns the connection for svc, dialing it when absent. Concurrent
// callers for the same service share one dial.
func (c *Connections) Get(ctx context.Context, svc string, mq *service.MessageQueue) (Broker, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if b, ok := c.conns[svc]; ok {
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(svc, func() (any, error) {
		c.mu.Lock()
		if b, ok := c.conns[svc]; ok {
			c.mu.Unlock()
			return b, nil
		}
		c.mu.Unlock()

		b, err := c.dialer.Dial(ctx, mq)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			b.Close()
			return nil, ErrClosed
		}
		c.conns[svc] = b
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Broker), nil
}

// Drop closes and forgets the connection for svc.
func (c *Connections) Drop(svc string) {
	c.mu.Lock()
	b, ok := c.conns[svc]
	delete(c.conns, svc)
	c.mu.Unlock()

	if ok {
		if err := b.Close(); err != nil {
			c.logger.Warn("failed to close broker connection", "service", svc, "error", err)
		}
	}
}

// Len returns the number of open connections.
func (c *Connections) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Close closes every connection. Later calls to Get fail with ErrClosed.
func (c *Connections) Close() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]Broker)
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, b := range conns {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
