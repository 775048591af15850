package queue

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"mercator-hq/kate/pkg/service"
)

// JetStreamBroker publishes to NATS JetStream. Every queue is backed by a
// file-stored stream with work-queue retention, so a message is kept until
// one consumer acknowledges it.
type JetStreamBroker struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	declared map[string]bool
}

// NewJetStreamDialer returns a Dialer that connects with opts.
func NewJetStreamDialer(opts Options) Dialer {
	return DialerFunc(func(ctx context.Context, mq *service.MessageQueue) (Broker, error) {
		return DialJetStream(ctx, mq, opts)
	})
}

// DialJetStream connects to the broker described by mq.
func DialJetStream(ctx context.Context, mq *service.MessageQueue, opts Options) (*JetStreamBroker, error) {
	opts = opts.withDefaults()
	url := "nats://" + net.JoinHostPort(mq.Host, strconv.Itoa(mq.Port))
	logger := slog.Default().With("component", "queue.jetstream", "broker", url)

	natsOpts := []nats.Option{
		nats.Name(opts.ClientName),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("broker disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("broker reconnected")
		}),
	}
	if mq.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(mq.Username, mq.Password))
	}

	type result struct {
		nc  *nats.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(url, natsOpts...)
		done <- result{nc, err}
	}()

	var nc *nats.Conn
	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to broker %s: %w", url, res.err)
		}
		nc = res.nc
	case <-ctx.Done():
		go func() {
			if res := <-done; res.nc != nil {
				res.nc.Close()
			}
		}()
		return nil, fmt.Errorf("failed to connect to broker %s: %w", url, ctx.Err())
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	logger.Info("connected to broker")
	return &JetStreamBroker{
		nc:       nc,
		js:       js,
		prefix:   opts.StreamPrefix,
		logger:   logger,
		declared: make(map[string]bool),
	}, nil
}

// StreamName returns the stream backing queue.
func (b *JetStreamBroker) StreamName(queue string) string {
	return StreamName(b.prefix, queue)
}

// Declare creates or updates the durable stream for queue.
func (b *JetStreamBroker) Declare(ctx context.Context, queue string) error {
	b.mu.Lock()
	done := b.declared[queue]
	b.mu.Unlock()
	if done {
		return nil
	}

	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      b.StreamName(queue),
		Subjects:  []string{queue},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	b.mu.Lock()
	b.declared[queue] = true
	b.mu.Unlock()
	return nil
}

// Publish sends data and waits for the stream's acknowledgement. The
// message id lets the stream discard duplicates from retried attempts.
func (b *JetStreamBroker) Publish(ctx context.Context, queue, msgID string, data []byte) error {
	ack, err := b.js.Publish(ctx, queue, data, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	if ack.Duplicate {
		b.logger.Debug("duplicate publish discarded", "queue", queue, "msg_id", msgID)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (b *JetStreamBroker) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("failed to drain broker connection: %w", err)
	}
	return nil
}

// StreamName derives a valid stream name from a queue name. Stream names
// may not contain '.', '*', '>' or whitespace.
func StreamName(prefix, queue string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '*' || r == '>' || r == '/' || r == '\\':
			return '_'
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return '_'
		}
		return r
	}, queue)
	if prefix == "" {
		return strings.ToUpper(name)
	}
	return prefix + "_" + strings.ToUpper(name)
}
